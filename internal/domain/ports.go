package domain

import (
	"context"
	"time"
)

// CustomerDirectory — внешний справочник клиентов.
type CustomerDirectory interface {
	// FindCustomerByCode возвращает клиента или ErrCustomerNotFound.
	FindCustomerByCode(ctx context.Context, companyID, code string) (Customer, error)
	ListCustomers(ctx context.Context, companyID string) ([]Customer, error)
}

// TripCatalog — внешний каталог поездок (услуг).
type TripCatalog interface {
	// FindTripByCode возвращает поездку или ErrTripNotFound.
	FindTripByCode(ctx context.Context, companyID, code string) (Trip, error)
	// GetTrip возвращает поездку по идентификатору с актуальной занятостью мест.
	GetTrip(ctx context.Context, companyID, tripID string) (Trip, error)
	ListTrips(ctx context.Context, companyID string) ([]Trip, error)
}

// TravelerDirectory — внешний справочник пассажиров.
type TravelerDirectory interface {
	// Get возвращает пассажира по идентификатору или ErrTravelerNotFound.
	Get(ctx context.Context, companyID, id string) (Traveler, error)
	Search(ctx context.Context, companyID string, field TravelerSearchField, value string, page int) (TravelerPage, error)
	Create(ctx context.Context, fields TravelerFields) (Traveler, error)
	Update(ctx context.Context, id string, patch map[TravelerField]string) (Traveler, error)
}

// SalesService — внешний сервис продаж. Каждая операция — неидемпотентная мутация.
type SalesService interface {
	CreateSale(ctx context.Context, req CreateSaleRequest) (Sale, error)
	UpdateSale(ctx context.Context, saleID string, req FinalizeSaleRequest) (Sale, error)
	AttachTraveler(ctx context.Context, req AttachTravelerRequest) (SaleTraveler, error)
}

// SellerDirectory — внешний справочник продавцов.
type SellerDirectory interface {
	ListSellers(ctx context.Context, companyID, excludeRole string) ([]Seller, error)
}

// Backoffice объединяет все внешние сервисы, которые потребляет движок.
type Backoffice interface {
	CustomerDirectory
	TripCatalog
	TravelerDirectory
	SalesService
	SellerDirectory
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит журнал попыток оформления по сессии.
type TimelineRepository interface {
	Append(event SubmissionEvent) error
	List(sessionID string) ([]SubmissionEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
