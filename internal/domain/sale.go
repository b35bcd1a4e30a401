package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus описывает жизненный цикл продажи во внешнем Sales service.
type SaleStatus string

const (
	// SaleStatusReserved — продажа создана, условия оплаты ещё не зафиксированы.
	SaleStatusReserved SaleStatus = "reserved"
	// SaleStatusConfirmed — продажа финализирована с условиями оплаты.
	SaleStatusConfirmed SaleStatus = "confirmed"
)

// PaymentMethod — выбранный способ оплаты. Движок только фиксирует выбор.
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodBankSlip   PaymentMethod = "bank_slip"
)

// ParsePaymentMethod нормализует и проверяет способ оплаты.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case PaymentMethodCash, PaymentMethodPix, PaymentMethodCreditCard,
		PaymentMethodDebitCard, PaymentMethodBankSlip:
		return m, nil
	}
	return "", ErrPaymentMethodInvalid
}

// PaymentPlan — план оплаты: способ, количество платежей и процентная ставка.
type PaymentPlan struct {
	Method       PaymentMethod   `json:"method"`
	Installments int             `json:"installments"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

// DefaultPaymentPlan возвращает значения, к которым план сбрасывается после продажи.
func DefaultPaymentPlan() PaymentPlan {
	return PaymentPlan{
		Method:       PaymentMethodCash,
		Installments: 1,
		InterestRate: decimal.Zero,
	}
}

// Validate проверяет план оплаты.
func (p PaymentPlan) Validate() []error {
	var errs []error

	if _, err := ParsePaymentMethod(string(p.Method)); err != nil {
		errs = append(errs, err)
	}
	if p.Installments < 1 {
		errs = append(errs, ErrInstallmentsInvalid)
	}
	if p.InterestRate.IsNegative() {
		errs = append(errs, ErrInterestRateNegative)
	}

	return errs
}

// Sale — удалённая авторитетная запись о продаже.
type Sale struct {
	ID            string          `json:"id"`
	CompanyID     string          `json:"company_id"`
	CustomerID    string          `json:"customer_id"`
	SellerID      string          `json:"seller_id"`
	TripID        string          `json:"trip_id"`
	Status        SaleStatus      `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Addition      decimal.Decimal `json:"addition"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	Installments  int             `json:"installments,omitempty"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SaleTraveler — привязка пассажира и места к продаже.
type SaleTraveler struct {
	ID         string `json:"id"`
	SaleID     string `json:"sale_id"`
	TravelerID string `json:"traveler_id"`
	SeatNumber int    `json:"seat_number"`
}

// CreateSaleRequest — payload шага CreatingSale.
type CreateSaleRequest struct {
	CompanyID  string          `json:"company_id"`
	CustomerID string          `json:"customer_id"`
	SellerID   string          `json:"seller_id"`
	TripID     string          `json:"trip_id"`
	Status     SaleStatus      `json:"status"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Addition   decimal.Decimal `json:"addition"`
}

// FinalizeSaleRequest — patch шага Finalizing.
type FinalizeSaleRequest struct {
	Status        SaleStatus      `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Installments  int             `json:"installments"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
}

// AttachTravelerRequest — payload шага AttachingTravelers[i].
type AttachTravelerRequest struct {
	SaleID     string `json:"sale_id"`
	TravelerID string `json:"traveler_id"`
	SeatNumber int    `json:"seat_number"`
}
