package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// TravelerPageSize — размер страницы поиска пассажиров.
const TravelerPageSize = 20

// Backoffice — in-memory реализация внешнего API (справочники, каталог, продажи)
// для режима разработки и тестов.
type Backoffice struct {
	mu            sync.RWMutex
	customers     map[string]domain.Customer
	trips         map[string]domain.Trip
	travelers     map[string]domain.Traveler
	sellers       map[string]domain.Seller
	sales         map[string]domain.Sale
	saleTravelers map[string][]domain.SaleTraveler
	now           func() time.Time
}

// NewBackoffice создаёт пустой back-office.
func NewBackoffice() *Backoffice {
	return &Backoffice{
		customers:     make(map[string]domain.Customer),
		trips:         make(map[string]domain.Trip),
		travelers:     make(map[string]domain.Traveler),
		sellers:       make(map[string]domain.Seller),
		sales:         make(map[string]domain.Sale),
		saleTravelers: make(map[string][]domain.SaleTraveler),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddCustomer добавляет клиента (seed).
func (b *Backoffice) AddCustomer(c domain.Customer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	b.customers[c.ID] = c
}

// AddTrip добавляет поездку (seed).
func (b *Backoffice) AddTrip(t domain.Trip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.OccupiedSeats = append([]int(nil), t.OccupiedSeats...)
	b.trips[t.ID] = t
}

// AddTraveler добавляет пассажира (seed).
func (b *Backoffice) AddTraveler(t domain.Traveler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	b.travelers[t.ID] = t
}

// AddSeller добавляет продавца (seed).
func (b *Backoffice) AddSeller(s domain.Seller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	b.sellers[s.ID] = s
}

// FindCustomerByCode ищет клиента по точному коду.
func (b *Backoffice) FindCustomerByCode(_ context.Context, companyID, code string) (domain.Customer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.customers {
		if c.CompanyID == companyID && c.Code == code {
			return c, nil
		}
	}
	return domain.Customer{}, fmt.Errorf("customer code %q: %w", code, domain.ErrCustomerNotFound)
}

// ListCustomers возвращает клиентов компании, отсортированных по коду.
func (b *Backoffice) ListCustomers(_ context.Context, companyID string) ([]domain.Customer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]domain.Customer, 0)
	for _, c := range b.customers {
		if c.CompanyID == companyID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// FindTripByCode ищет поездку по точному коду.
func (b *Backoffice) FindTripByCode(_ context.Context, companyID, code string) (domain.Trip, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, t := range b.trips {
		if t.CompanyID == companyID && t.Code == code {
			return cloneTrip(t), nil
		}
	}
	return domain.Trip{}, fmt.Errorf("trip code %q: %w", code, domain.ErrTripNotFound)
}

// GetTrip возвращает поездку с текущей занятостью мест.
func (b *Backoffice) GetTrip(_ context.Context, companyID, tripID string) (domain.Trip, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.trips[tripID]
	if !ok || t.CompanyID != companyID {
		return domain.Trip{}, fmt.Errorf("trip %s: %w", tripID, domain.ErrTripNotFound)
	}
	return cloneTrip(t), nil
}

// ListTrips возвращает поездки компании по дате отправления.
func (b *Backoffice) ListTrips(_ context.Context, companyID string) ([]domain.Trip, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]domain.Trip, 0)
	for _, t := range b.trips {
		if t.CompanyID == companyID {
			result = append(result, cloneTrip(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DepartureAt.Equal(result[j].DepartureAt) {
			return result[i].Code < result[j].Code
		}
		return result[i].DepartureAt.Before(result[j].DepartureAt)
	})
	return result, nil
}

func cloneTrip(t domain.Trip) domain.Trip {
	t.OccupiedSeats = append([]int(nil), t.OccupiedSeats...)
	return t
}

// Search ищет пассажиров: code и cpf — точное совпадение, name — подстрока без учёта регистра.
func (b *Backoffice) Search(_ context.Context, companyID string, field domain.TravelerSearchField, value string, page int) (domain.TravelerPage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	matches := make([]domain.Traveler, 0)
	for _, t := range b.travelers {
		if t.CompanyID != companyID {
			continue
		}
		switch field {
		case domain.TravelerSearchByCode:
			if t.Code == value {
				matches = append(matches, t)
			}
		case domain.TravelerSearchByCPF:
			if t.CPF == value {
				matches = append(matches, t)
			}
		case domain.TravelerSearchByName:
			if strings.Contains(strings.ToLower(t.Name), strings.ToLower(value)) {
				matches = append(matches, t)
			}
		default:
			return domain.TravelerPage{}, fmt.Errorf("search field %q: %w", field, domain.ErrTravelerFieldUnknown)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name == matches[j].Name {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Name < matches[j].Name
	})

	result := domain.TravelerPage{Items: []domain.Traveler{}, Page: page, Total: len(matches)}
	start := (page - 1) * TravelerPageSize
	if start < len(matches) {
		end := start + TravelerPageSize
		if end > len(matches) {
			end = len(matches)
		}
		result.Items = append(result.Items, matches[start:end]...)
	}
	return result, nil
}

// Get возвращает пассажира компании по идентификатору.
func (b *Backoffice) Get(_ context.Context, companyID, id string) (domain.Traveler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.travelers[id]
	if !ok || t.CompanyID != companyID {
		return domain.Traveler{}, fmt.Errorf("traveler %s: %w", id, domain.ErrTravelerNotFound)
	}
	return t, nil
}

// Create сохраняет нового пассажира.
func (b *Backoffice) Create(_ context.Context, fields domain.TravelerFields) (domain.Traveler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := domain.Traveler{
		ID:        uuid.NewString(),
		CompanyID: fields.CompanyID,
		Code:      fields.Code,
		Name:      fields.Name,
		CPF:       fields.CPF,
		RG:        fields.RG,
		BirthDate: fields.BirthDate,
		Email:     fields.Email,
		Phone:     fields.Phone,
	}
	b.travelers[t.ID] = t
	return t, nil
}

// Update применяет patch к пассажиру и возвращает обновлённую запись.
func (b *Backoffice) Update(_ context.Context, id string, patch map[domain.TravelerField]string) (domain.Traveler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.travelers[id]
	if !ok {
		return domain.Traveler{}, fmt.Errorf("traveler %s: %w", id, domain.ErrTravelerNotFound)
	}
	for field, value := range patch {
		if _, err := domain.ParseTravelerField(string(field)); err != nil {
			return domain.Traveler{}, fmt.Errorf("field %q: %w", field, err)
		}
		t = t.With(field, value)
	}
	b.travelers[id] = t
	return t, nil
}

// ListSellers возвращает продавцов компании, кроме роли excludeRole.
func (b *Backoffice) ListSellers(_ context.Context, companyID, excludeRole string) ([]domain.Seller, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]domain.Seller, 0)
	for _, s := range b.sellers {
		if s.CompanyID != companyID {
			continue
		}
		if excludeRole != "" && strings.EqualFold(s.Role, excludeRole) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// CreateSale создаёт продажу в статусе из запроса (обычно reserved).
func (b *Backoffice) CreateSale(_ context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.trips[req.TripID]; !ok {
		return domain.Sale{}, fmt.Errorf("trip %s: %w", req.TripID, domain.ErrTripNotFound)
	}
	status := req.Status
	if status == "" {
		status = domain.SaleStatusReserved
	}
	now := b.now()
	sale := domain.Sale{
		ID:           uuid.NewString(),
		CompanyID:    req.CompanyID,
		CustomerID:   req.CustomerID,
		SellerID:     req.SellerID,
		TripID:       req.TripID,
		Status:       status,
		Subtotal:     req.Subtotal,
		Discount:     req.Discount,
		Addition:     req.Addition,
		InterestRate: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.sales[sale.ID] = sale
	return sale, nil
}

// UpdateSale фиксирует статус и условия оплаты.
func (b *Backoffice) UpdateSale(_ context.Context, saleID string, req domain.FinalizeSaleRequest) (domain.Sale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sale, ok := b.sales[saleID]
	if !ok {
		return domain.Sale{}, fmt.Errorf("sale %s: not found", saleID)
	}
	sale.Status = req.Status
	sale.PaymentMethod = req.PaymentMethod
	sale.Installments = req.Installments
	sale.InterestRate = req.InterestRate
	sale.UpdatedAt = b.now()
	b.sales[saleID] = sale
	return sale, nil
}

// AttachTraveler привязывает пассажира к продаже и занимает место в поездке.
func (b *Backoffice) AttachTraveler(_ context.Context, req domain.AttachTravelerRequest) (domain.SaleTraveler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sale, ok := b.sales[req.SaleID]
	if !ok {
		return domain.SaleTraveler{}, fmt.Errorf("sale %s: not found", req.SaleID)
	}
	if _, ok := b.travelers[req.TravelerID]; !ok {
		return domain.SaleTraveler{}, fmt.Errorf("traveler %s: %w", req.TravelerID, domain.ErrTravelerNotFound)
	}
	trip := b.trips[sale.TripID]
	if trip.IsSeatOccupied(req.SeatNumber) {
		return domain.SaleTraveler{}, fmt.Errorf("seat %d: %w", req.SeatNumber, domain.ErrSeatConflict)
	}
	trip.OccupiedSeats = append(trip.OccupiedSeats, req.SeatNumber)
	trip.ReservedSeatCount++
	b.trips[trip.ID] = trip

	st := domain.SaleTraveler{
		ID:         uuid.NewString(),
		SaleID:     req.SaleID,
		TravelerID: req.TravelerID,
		SeatNumber: req.SeatNumber,
	}
	b.saleTravelers[req.SaleID] = append(b.saleTravelers[req.SaleID], st)
	return st, nil
}

// Sale возвращает продажу по идентификатору (для проверок и API).
func (b *Backoffice) Sale(id string) (domain.Sale, []domain.SaleTraveler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sale, ok := b.sales[id]
	if !ok {
		return domain.Sale{}, nil, false
	}
	return sale, append([]domain.SaleTraveler(nil), b.saleTravelers[id]...), true
}

// Sales возвращает количество созданных продаж.
func (b *Backoffice) Sales() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sales)
}

var _ domain.Backoffice = (*Backoffice)(nil)
