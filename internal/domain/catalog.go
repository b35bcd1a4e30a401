package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VehicleType — тип транспорта поездки.
type VehicleType string

const (
	VehicleBus        VehicleType = "bus"
	VehicleMinibus    VehicleType = "minibus"
	VehicleDoubleDeck VehicleType = "double_decker"
	VehicleVan        VehicleType = "van"
)

// Vehicle — метаданные транспорта; раскладка мест целиком на стороне внешнего API.
type Vehicle struct {
	TotalSeats  int         `json:"total_seats"`
	Type        VehicleType `json:"type"`
	HasBathroom bool        `json:"has_bathroom"`
}

// Trip — бронируемый экземпляр пакета (услуга в корзине).
type Trip struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	CompanyID         string          `json:"company_id"`
	PackageName       string          `json:"package_name"`
	Price             decimal.Decimal `json:"price"`
	ReservedSeatCount int             `json:"reserved_seat_count"`
	// OccupiedSeats — зарезервированные и уже проданные места.
	OccupiedSeats []int     `json:"occupied_seats"`
	DepartureAt   time.Time `json:"departure_at"`
	ReturnAt      time.Time `json:"return_at"`
	Vehicle       Vehicle   `json:"vehicle"`
}

// IsSeatOccupied проверяет место по данным поездки.
func (t Trip) IsSeatOccupied(seat int) bool {
	for _, s := range t.OccupiedSeats {
		if s == seat {
			return true
		}
	}
	return false
}

// Customer — клиент, на которого оформляется продажа.
type Customer struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Document  string `json:"document,omitempty"`
}

// Seller — продавец, выполняющий продажу.
type Seller struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}
