// Package cart содержит CartSession — единственного владельца состояния корзины PDV.
// Все изменения корзины проходят через методы Session.
package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/pricing"
	"github.com/vladislavdragonenkov/pdv/internal/service/seats"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

// Directories — внешние справочники, нужные сессии.
type Directories interface {
	domain.CustomerDirectory
	domain.TripCatalog
	domain.SellerDirectory
}

// Config задаёт зависимости сессии.
type Config struct {
	Directories       Directories
	Resolver          *travelers.Resolver
	Allocator         seats.Allocator
	Logger            *log.Entry
	SellerExcludeRole string
	NewID             func() string
	Now               func() time.Time
}

// Session — корзина одной вкладки PDV. Один писатель, защищён мьютексом.
// Удалённые вызовы выполняются без блокировки; результат применяется с повторной проверкой состояния.
type Session struct {
	mu sync.Mutex

	id        string
	companyID string
	createdAt time.Time

	lines        []domain.CartLine
	activeLineID string
	trips        map[string]domain.Trip

	customer *domain.Customer
	seller   *domain.Seller
	discount domain.Adjustment
	addition domain.Adjustment
	plan     domain.PaymentPlan

	processing bool
	state      domain.SubmissionState
	draft      *domain.SaleDraft
	edits      map[string]travelers.FieldEdit

	dirs        Directories
	resolver    *travelers.Resolver
	allocator   seats.Allocator
	logger      *log.Entry
	excludeRole string
	newID       func() string
	now         func() time.Time
}

// NewSession создаёт пустую корзину для компании.
func NewSession(id, companyID string, cfg Config) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "cart-session")
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	resolver := cfg.Resolver
	if resolver == nil && cfg.Directories != nil {
		if dir, ok := cfg.Directories.(domain.TravelerDirectory); ok {
			resolver = travelers.NewResolver(dir, logger.WithField("component", "traveler-resolver"))
		}
	}

	return &Session{
		id:          id,
		companyID:   companyID,
		createdAt:   now(),
		lines:       []domain.CartLine{},
		trips:       make(map[string]domain.Trip),
		discount:    domain.NoAdjustment(),
		addition:    domain.NoAdjustment(),
		plan:        domain.DefaultPaymentPlan(),
		state:       domain.SubmissionIdle,
		edits:       make(map[string]travelers.FieldEdit),
		dirs:        cfg.Directories,
		resolver:    resolver,
		allocator:   cfg.Allocator,
		logger:      logger.WithFields(log.Fields{"session_id": id, "company_id": companyID}),
		excludeRole: cfg.SellerExcludeRole,
		newID:       newID,
		now:         now,
	}
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// CompanyID возвращает компанию сессии.
func (s *Session) CompanyID() string { return s.companyID }

// mutable проверяет, что корзину можно менять. Вызывается под блокировкой.
func (s *Session) mutable() error {
	if s.processing {
		return domain.ErrSubmissionInProgress
	}
	return nil
}

func (s *Session) lineIndex(lineID string) int {
	for i, l := range s.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// resolveLineID подставляет активную позицию, если lineID пуст.
func (s *Session) resolveLineID(lineID string) (int, error) {
	if lineID == "" {
		lineID = s.activeLineID
		if lineID == "" {
			return -1, domain.ErrNoActiveLine
		}
	}
	idx := s.lineIndex(lineID)
	if idx < 0 {
		return -1, fmt.Errorf("line %s: %w", lineID, domain.ErrLineNotFound)
	}
	return idx, nil
}

// AddLine добавляет позицию. Если позиция с той же услугой уже есть и confirmDuplicate=false,
// возвращается ErrDuplicateService и корзина не меняется. Позиции никогда не объединяются.
// Поездка загружается из каталога и кэшируется для расчёта цены; неизвестная услуга — ErrTripNotFound.
func (s *Session) AddLine(ctx context.Context, serviceID string, confirmDuplicate bool) (domain.CartLine, error) {
	if err := s.checkMutable(); err != nil {
		return domain.CartLine{}, err
	}
	if serviceID == "" {
		return domain.CartLine{}, domain.ErrServiceRequired
	}
	trip, err := s.dirs.GetTrip(ctx, s.companyID, serviceID)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("load trip %s: %w", serviceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.addLineLocked(serviceID, confirmDuplicate)
	if err != nil {
		return domain.CartLine{}, err
	}
	s.trips[serviceID] = trip
	return line, nil
}

func (s *Session) addLineLocked(serviceID string, confirmDuplicate bool) (domain.CartLine, error) {
	if err := s.mutable(); err != nil {
		return domain.CartLine{}, err
	}
	if serviceID == "" {
		return domain.CartLine{}, domain.ErrServiceRequired
	}
	if !confirmDuplicate {
		for _, l := range s.lines {
			if l.ServiceID == serviceID {
				return domain.CartLine{}, fmt.Errorf("service %s: %w", serviceID, domain.ErrDuplicateService)
			}
		}
	}

	line := domain.NewCartLine(s.newID(), serviceID)
	s.lines = append(s.lines, line)
	if s.activeLineID == "" {
		s.activeLineID = line.ID
	}
	s.logger.WithFields(log.Fields{"line_id": line.ID, "service_id": serviceID}).Debug("cart line added")
	return line.Clone(), nil
}

// AddServiceByCode находит поездку по коду, запоминает её и добавляет позицию.
func (s *Session) AddServiceByCode(ctx context.Context, code string, confirmDuplicate bool) (domain.CartLine, domain.Trip, error) {
	if err := s.checkMutable(); err != nil {
		return domain.CartLine{}, domain.Trip{}, err
	}
	trip, err := s.dirs.FindTripByCode(ctx, s.companyID, code)
	if err != nil {
		return domain.CartLine{}, domain.Trip{}, fmt.Errorf("find trip %q: %w", code, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.addLineLocked(trip.ID, confirmDuplicate)
	if err != nil {
		return domain.CartLine{}, trip, err
	}
	s.trips[trip.ID] = trip
	return line, trip, nil
}

// RememberTrip кладёт данные поездки в кэш сессии (цена и занятость мест).
func (s *Session) RememberTrip(trip domain.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = trip
}

func (s *Session) checkMutable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutable()
}

// SetQuantity меняет количество мест (минимум 1). При уменьшении лишние назначения
// и кандидаты отбрасываются с конца, пассажиры с местами остаются кандидатами.
func (s *Session) SetQuantity(lineID string, n int) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.CartLine{}, err
	}
	idx, err := s.resolveLineID(lineID)
	if err != nil {
		return domain.CartLine{}, err
	}

	line := s.lines[idx].Truncated(n)
	s.lines[idx] = line
	return line.Clone(), nil
}

// RemoveLine удаляет позицию; фокус переходит на первую оставшуюся позицию.
func (s *Session) RemoveLine(lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	idx := s.lineIndex(lineID)
	if idx < 0 {
		return fmt.Errorf("line %s: %w", lineID, domain.ErrLineNotFound)
	}

	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	if s.activeLineID == lineID {
		s.activeLineID = ""
		if len(s.lines) > 0 {
			s.activeLineID = s.lines[0].ID
		}
	}
	return nil
}

// SetActiveLine переключает позицию, с которой работают диалоги пассажиров.
func (s *Session) SetActiveLine(lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if s.lineIndex(lineID) < 0 {
		return fmt.Errorf("line %s: %w", lineID, domain.ErrLineNotFound)
	}
	s.activeLineID = lineID
	return nil
}

// Lines возвращает копию позиций.
func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesCopy()
}

func (s *Session) linesCopy() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.Clone()
	}
	return out
}

// Line возвращает позицию по идентификатору (пустой — активная).
func (s *Session) Line(lineID string) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.resolveLineID(lineID)
	if err != nil {
		return domain.CartLine{}, err
	}
	return s.lines[idx].Clone(), nil
}

// SetAdjustments задаёт скидку и надбавку. Отрицательные суммы отклоняются.
func (s *Session) SetAdjustments(discount, addition domain.Adjustment) error {
	if err := discount.Validate(); err != nil {
		return fmt.Errorf("discount: %w", err)
	}
	if err := addition.Validate(); err != nil {
		return fmt.Errorf("addition: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if discount.Kind == "" {
		discount.Kind = domain.AdjustmentFixed
	}
	if addition.Kind == "" {
		addition.Kind = domain.AdjustmentFixed
	}
	s.discount = discount
	s.addition = addition
	return nil
}

// SetPaymentPlan задаёт способ оплаты, число платежей и ставку.
func (s *Session) SetPaymentPlan(plan domain.PaymentPlan) error {
	if errs := plan.Validate(); len(errs) > 0 {
		return fmt.Errorf("payment plan: %w", errs[0])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	s.plan = plan
	return nil
}

// Totals пересчитывает цены при каждом вызове.
func (s *Session) Totals() domain.PricingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *Session) totalsLocked() domain.PricingState {
	prices := make(map[string]decimal.Decimal, len(s.trips))
	for id, trip := range s.trips {
		prices[id] = trip.Price
	}
	return pricing.ComputeTotals(s.lines, pricing.MapLookup(prices), s.discount, s.addition, s.plan.Installments)
}

// Reset очищает корзину после успешной продажи: позиции, корректировки и план оплаты.
// Выбранные клиент и продавец сохраняются.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []domain.CartLine{}
	s.activeLineID = ""
	s.discount = domain.NoAdjustment()
	s.addition = domain.NoAdjustment()
	s.plan = domain.DefaultPaymentPlan()
	s.edits = make(map[string]travelers.FieldEdit)
	s.logger.Debug("cart reset")
}
