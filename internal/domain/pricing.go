package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AdjustmentKind — вид скидки/надбавки.
type AdjustmentKind string

const (
	AdjustmentFixed   AdjustmentKind = "fixed"
	AdjustmentPercent AdjustmentKind = "percent"
)

// Adjustment — скидка или надбавка: фиксированная сумма или процент от subtotal.
type Adjustment struct {
	Kind   AdjustmentKind  `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

// Fixed создаёт фиксированную корректировку.
func Fixed(amount decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustmentFixed, Amount: amount}
}

// Percent создаёт процентную корректировку.
func Percent(amount decimal.Decimal) Adjustment {
	return Adjustment{Kind: AdjustmentPercent, Amount: amount}
}

// NoAdjustment — нулевая фиксированная корректировка.
func NoAdjustment() Adjustment {
	return Fixed(decimal.Zero)
}

// ParseAdjustmentKind нормализует вид корректировки; "percentage" принимается как синоним.
func ParseAdjustmentKind(raw string) (AdjustmentKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(AdjustmentFixed):
		return AdjustmentFixed, nil
	case string(AdjustmentPercent), "percentage":
		return AdjustmentPercent, nil
	}
	return "", ErrAdjustmentKindInvalid
}

// Value вычисляет сумму корректировки относительно subtotal. Отрицательная сумма считается нулём.
func (a Adjustment) Value(subtotal decimal.Decimal) decimal.Decimal {
	amount := a.Amount
	if amount.IsNegative() {
		return decimal.Zero
	}
	if a.Kind == AdjustmentPercent {
		return subtotal.Mul(amount).Div(decimal.NewFromInt(100))
	}
	return amount
}

// Validate проверяет корректировку перед сохранением в сессии.
func (a Adjustment) Validate() error {
	if _, err := ParseAdjustmentKind(string(a.Kind)); err != nil {
		return err
	}
	if a.Amount.IsNegative() {
		return ErrAdjustmentNegative
	}
	return nil
}

// PricingState — производное состояние цен, пересчитывается при каждом чтении.
type PricingState struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	AdditionValue    decimal.Decimal `json:"addition_value"`
	FinalValue       decimal.Decimal `json:"final_value"`
	Installments     int             `json:"installments"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
}
