package sales

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func TestMockService(t *testing.T) {
	ctx := context.Background()
	mock := NewMockService()

	sale, err := mock.CreateSale(ctx, domain.CreateSaleRequest{TripID: "trip-1", Status: domain.SaleStatusReserved})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if status, _ := mock.SaleStatus(sale.ID); status != domain.SaleStatusReserved {
		t.Fatalf("unexpected status: %s", status)
	}

	if _, err := mock.UpdateSale(ctx, sale.ID, domain.FinalizeSaleRequest{Status: domain.SaleStatusConfirmed}); err != nil {
		t.Fatalf("unexpected finalize error: %v", err)
	}
	if status, _ := mock.SaleStatus(sale.ID); status != domain.SaleStatusConfirmed {
		t.Fatalf("unexpected status: %s", status)
	}

	mock.FailAttachOn(1, errors.New("attach failed"))
	if _, err := mock.AttachTraveler(ctx, domain.AttachTravelerRequest{SaleID: sale.ID, TravelerID: "A", SeatNumber: 1}); err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	if _, err := mock.AttachTraveler(ctx, domain.AttachTravelerRequest{SaleID: sale.ID, TravelerID: "B", SeatNumber: 2}); err == nil {
		t.Fatal("expected attach error on second call")
	}

	ids := mock.AttachedTravelerIDs(sale.ID)
	if len(ids) != 1 || ids[0] != "A" {
		t.Fatalf("unexpected attached travelers: %v", ids)
	}
	if mock.CreateCalls != 1 || mock.FinalizeCalls != 1 || mock.AttachCalls != 2 {
		t.Fatalf("unexpected call counters: create=%d finalize=%d attach=%d", mock.CreateCalls, mock.FinalizeCalls, mock.AttachCalls)
	}
}

func TestMockService_FinalizeFailureKeepsReserved(t *testing.T) {
	ctx := context.Background()
	mock := NewMockService()
	mock.FinalizeErr = errors.New("gateway timeout")

	sale, err := mock.CreateSale(ctx, domain.CreateSaleRequest{Status: domain.SaleStatusReserved})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := mock.UpdateSale(ctx, sale.ID, domain.FinalizeSaleRequest{Status: domain.SaleStatusConfirmed}); err == nil {
		t.Fatal("expected finalize error")
	}
	if status, _ := mock.SaleStatus(sale.ID); status != domain.SaleStatusReserved {
		t.Fatalf("expected reserved sale, got %s", status)
	}
}
