// Package sales содержит конфигурируемую заглушку внешнего Sales service.
package sales

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// MockService — заглушка SalesService с внедрением отказов по шагам.
// Если задан Delegate, успешные вызовы передаются ему.
type MockService struct {
	mu sync.Mutex

	Delegate domain.SalesService

	CreateErr   error
	FinalizeErr error
	// AttachErrAt — ошибка для вызова AttachTraveler с указанным номером (с нуля).
	AttachErrAt map[int]error

	CreateCalls   int
	FinalizeCalls int
	AttachCalls   int

	Created   []domain.CreateSaleRequest
	Finalized []domain.FinalizeSaleRequest
	Attached  []domain.AttachTravelerRequest

	sales map[string]domain.Sale
	seq   int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		AttachErrAt: make(map[int]error),
		sales:       make(map[string]domain.Sale),
	}
}

// FailAttachOn настраивает отказ на n-м прикреплении пассажира (с нуля).
func (m *MockService) FailAttachOn(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachErrAt[n] = err
}

// CreateSale возвращает продажу в статусе запроса и считает вызовы.
func (m *MockService) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.Sale{}, m.CreateErr
	}

	var sale domain.Sale
	if m.Delegate != nil {
		var err error
		if sale, err = m.Delegate.CreateSale(ctx, req); err != nil {
			return domain.Sale{}, err
		}
	} else {
		m.seq++
		now := time.Now().UTC()
		sale = domain.Sale{
			ID:         fmt.Sprintf("sale-%d", m.seq),
			CompanyID:  req.CompanyID,
			CustomerID: req.CustomerID,
			SellerID:   req.SellerID,
			TripID:     req.TripID,
			Status:     req.Status,
			Subtotal:   req.Subtotal,
			Discount:   req.Discount,
			Addition:   req.Addition,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	m.sales[sale.ID] = sale
	m.Created = append(m.Created, req)
	return sale, nil
}

// UpdateSale переводит продажу в статус запроса с условиями оплаты.
func (m *MockService) UpdateSale(ctx context.Context, saleID string, req domain.FinalizeSaleRequest) (domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FinalizeCalls++
	if m.FinalizeErr != nil {
		return domain.Sale{}, m.FinalizeErr
	}

	var sale domain.Sale
	if m.Delegate != nil {
		var err error
		if sale, err = m.Delegate.UpdateSale(ctx, saleID, req); err != nil {
			return domain.Sale{}, err
		}
	} else {
		var ok bool
		if sale, ok = m.sales[saleID]; !ok {
			return domain.Sale{}, fmt.Errorf("sale %s: not found", saleID)
		}
		sale.Status = req.Status
		sale.PaymentMethod = req.PaymentMethod
		sale.Installments = req.Installments
		sale.InterestRate = req.InterestRate
		sale.UpdatedAt = time.Now().UTC()
	}
	m.sales[saleID] = sale
	m.Finalized = append(m.Finalized, req)
	return sale, nil
}

// AttachTraveler прикрепляет пассажира, если для этого вызова не настроен отказ.
func (m *MockService) AttachTraveler(ctx context.Context, req domain.AttachTravelerRequest) (domain.SaleTraveler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.AttachCalls
	m.AttachCalls++
	if err, ok := m.AttachErrAt[call]; ok && err != nil {
		return domain.SaleTraveler{}, err
	}

	var st domain.SaleTraveler
	if m.Delegate != nil {
		var err error
		if st, err = m.Delegate.AttachTraveler(ctx, req); err != nil {
			return domain.SaleTraveler{}, err
		}
	} else {
		st = domain.SaleTraveler{
			ID:         fmt.Sprintf("%s-t%d", req.SaleID, len(m.Attached)+1),
			SaleID:     req.SaleID,
			TravelerID: req.TravelerID,
			SeatNumber: req.SeatNumber,
		}
	}
	m.Attached = append(m.Attached, req)
	return st, nil
}

// SaleStatus возвращает статус продажи, созданной через mock.
func (m *MockService) SaleStatus(saleID string) (domain.SaleStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleID]
	return sale.Status, ok
}

// AttachedTravelerIDs возвращает пассажиров, успешно прикреплённых к продаже, по порядку.
func (m *MockService) AttachedTravelerIDs(saleID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Attached))
	for _, a := range m.Attached {
		if a.SaleID == saleID {
			ids = append(ids, a.TravelerID)
		}
	}
	return ids
}

var _ domain.SalesService = (*MockService)(nil)
