package domain_test

import (
	"testing"
	"time"

	"github.com/2jz-code/pos-sync/internal/domain"
)

// helper для создания базового слепка заказа с двумя позициями.
func makePayload() domain.OrderPayload {
	now := time.Now().UTC()
	return domain.OrderPayload{
		Lines: []domain.OrderLine{
			{
				ItemID:         "item-1",
				Name:           "Americano",
				Qty:            1,
				UnitPriceMinor: 1000,
				TotalMinor:     1000,
			},
			{
				ItemID:         "item-2",
				Name:           "Sandwich",
				Qty:            1,
				UnitPriceMinor: 1500,
				TotalMinor:     1500,
			},
		},
		Totals: domain.OrderTotals{
			Currency:      "USD",
			SubtotalMinor: 2500,
			TotalMinor:    2500,
		},
		CreatedAt: now,
	}
}

func TestOrderPayloadValidateInvariants_Ok(t *testing.T) {
	payload := makePayload()
	if errs := payload.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderPayloadValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(p *domain.OrderPayload)
	}{
		{
			name: "no currency",
			mut: func(p *domain.OrderPayload) {
				p.Totals.Currency = ""
			},
		},
		{
			name: "no lines",
			mut: func(p *domain.OrderPayload) {
				p.Lines = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(p *domain.OrderPayload) {
				p.Lines[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(p *domain.OrderPayload) {
				p.Lines[0].UnitPriceMinor = -5
			},
		},
		{
			name: "subtotal mismatch",
			mut: func(p *domain.OrderPayload) {
				p.Totals.SubtotalMinor = 999
			},
		},
		{
			name: "total mismatch",
			mut: func(p *domain.OrderPayload) {
				p.Totals.TotalMinor = 9999
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := makePayload()
			tc.mut(&payload)

			if len(payload.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestLineSubtotalIncludesModifiers(t *testing.T) {
	line := domain.OrderLine{
		Qty:            2,
		UnitPriceMinor: 500,
		Modifiers: []domain.LineModifier{
			{ID: "mod-1", Name: "oat milk", PriceMinor: 75},
		},
	}
	if got := line.SubtotalMinor(); got != 1150 {
		t.Fatalf("expected 1150, got %d", got)
	}
}

func TestPaymentMethodCashEquivalent(t *testing.T) {
	cases := map[domain.PaymentMethod]bool{
		domain.PaymentMethodCash:     true,
		domain.PaymentMethodCheck:    true,
		domain.PaymentMethodCard:     false,
		domain.PaymentMethodGiftCard: false,
	}
	for method, want := range cases {
		if got := method.CashEquivalent(); got != want {
			t.Fatalf("method %s: expected %v, got %v", method, want, got)
		}
	}
}
