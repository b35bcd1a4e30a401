// Package pricing вычисляет итоговые суммы корзины PDV. Пакет не делает внешних вызовов.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// moneyPlaces — точность денежных сумм.
const moneyPlaces = 2

// PriceLookup возвращает цену за единицу услуги. ok=false означает отсутствующую или битую запись.
type PriceLookup func(serviceID string) (price decimal.Decimal, ok bool)

// MapLookup строит PriceLookup поверх готовой таблицы цен.
func MapLookup(prices map[string]decimal.Decimal) PriceLookup {
	return func(serviceID string) (decimal.Decimal, bool) {
		price, ok := prices[serviceID]
		return price, ok
	}
}

// UnitPrice возвращает цену позиции; отсутствующая или отрицательная цена считается нулём.
func UnitPrice(lookup PriceLookup, serviceID string) decimal.Decimal {
	if lookup == nil {
		return decimal.Zero
	}
	price, ok := lookup(serviceID)
	if !ok || price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// ComputeTotals пересчитывает PricingState. Функция чистая и не кэширует результат.
func ComputeTotals(
	lines []domain.CartLine,
	lookup PriceLookup,
	discount, addition domain.Adjustment,
	installments int,
) domain.PricingState {
	subtotal := decimal.Zero
	for _, line := range lines {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		subtotal = subtotal.Add(UnitPrice(lookup, line.ServiceID).Mul(decimal.NewFromInt(int64(qty))))
	}

	discountValue := discount.Value(subtotal)
	additionValue := addition.Value(subtotal)

	final := subtotal.Sub(discountValue).Add(additionValue)
	if final.IsNegative() {
		final = decimal.Zero
	}

	if installments < 1 {
		installments = 1
	}

	return domain.PricingState{
		Subtotal:         subtotal.Round(moneyPlaces),
		DiscountValue:    discountValue.Round(moneyPlaces),
		AdditionValue:    additionValue.Round(moneyPlaces),
		FinalValue:       final.Round(moneyPlaces),
		Installments:     installments,
		InstallmentValue: final.Div(decimal.NewFromInt(int64(installments))).Round(moneyPlaces),
	}
}
