package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// DemoCompanyID — компания демо-данных режима разработки.
const DemoCompanyID = "demo-company"

// SeedDemo заполняет back-office демо-данными для локального запуска.
func SeedDemo(b *Backoffice) {
	departure := time.Date(2026, 12, 20, 6, 0, 0, 0, time.UTC)

	b.AddCustomer(domain.Customer{ID: "cus-001", CompanyID: DemoCompanyID, Code: "C001", Name: "Agência Central", Document: "12345678000190"})
	b.AddCustomer(domain.Customer{ID: "cus-002", CompanyID: DemoCompanyID, Code: "C002", Name: "Maria Souza", Document: "39053344705"})

	b.AddTrip(domain.Trip{
		ID:                "trip-001",
		Code:              "EXC-001",
		CompanyID:         DemoCompanyID,
		PackageName:       "Serra Gaúcha",
		Price:             decimal.RequireFromString("450.00"),
		ReservedSeatCount: 2,
		OccupiedSeats:     []int{1, 2},
		DepartureAt:       departure,
		ReturnAt:          departure.Add(72 * time.Hour),
		Vehicle:           domain.Vehicle{TotalSeats: 46, Type: domain.VehicleBus, HasBathroom: true},
	})
	b.AddTrip(domain.Trip{
		ID:          "trip-002",
		Code:        "EXC-002",
		CompanyID:   DemoCompanyID,
		PackageName: "Litoral Norte",
		Price:       decimal.RequireFromString("180.50"),
		DepartureAt: departure.Add(7 * 24 * time.Hour),
		ReturnAt:    departure.Add(8 * 24 * time.Hour),
		Vehicle:     domain.Vehicle{TotalSeats: 15, Type: domain.VehicleVan},
	})

	b.AddTraveler(domain.Traveler{ID: "trv-001", CompanyID: DemoCompanyID, Code: "P001", Name: "Ana Lima", CPF: "11144477735", BirthDate: "1990-04-12", Email: "ana@example.com"})
	b.AddTraveler(domain.Traveler{ID: "trv-002", CompanyID: DemoCompanyID, Code: "P002", Name: "Bruno Costa", CPF: "52998224725", BirthDate: "1987-09-30"})

	b.AddSeller(domain.Seller{ID: "sel-001", CompanyID: DemoCompanyID, Name: "Carla Mendes", Role: "seller"})
	b.AddSeller(domain.Seller{ID: "sel-002", CompanyID: DemoCompanyID, Name: "Diego Rocha", Role: "manager"})
	b.AddSeller(domain.Seller{ID: "sel-003", CompanyID: DemoCompanyID, Name: "Eduardo Alves", Role: "driver"})
}
