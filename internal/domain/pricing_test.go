package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func TestAdjustmentValue(t *testing.T) {
	subtotal := decimal.NewFromInt(200)

	cases := []struct {
		name string
		adj  domain.Adjustment
		want string
	}{
		{name: "percent", adj: domain.Percent(decimal.NewFromInt(10)), want: "20"},
		{name: "fixed", adj: domain.Fixed(decimal.NewFromInt(5)), want: "5"},
		{name: "negative treated as zero", adj: domain.Fixed(decimal.NewFromInt(-5)), want: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.adj.Value(subtotal)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAdjustmentValidate(t *testing.T) {
	if err := domain.Fixed(decimal.NewFromInt(-1)).Validate(); !errors.Is(err, domain.ErrAdjustmentNegative) {
		t.Fatalf("expected ErrAdjustmentNegative, got %v", err)
	}
	bad := domain.Adjustment{Kind: "ratio", Amount: decimal.NewFromInt(1)}
	if err := bad.Validate(); !errors.Is(err, domain.ErrAdjustmentKindInvalid) {
		t.Fatalf("expected ErrAdjustmentKindInvalid, got %v", err)
	}
}

func TestParseAdjustmentKind_Synonyms(t *testing.T) {
	kind, err := domain.ParseAdjustmentKind("Percentage")
	if err != nil || kind != domain.AdjustmentPercent {
		t.Fatalf("expected percent, got %q (%v)", kind, err)
	}
}

func TestPaymentPlanValidate(t *testing.T) {
	plan := domain.DefaultPaymentPlan()
	if errs := plan.Validate(); len(errs) != 0 {
		t.Fatalf("default plan must be valid, got %v", errs)
	}

	plan.Installments = 0
	plan.InterestRate = decimal.NewFromInt(-1)
	if errs := plan.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
