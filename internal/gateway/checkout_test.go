package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/storage/memory"
)

func cashRequest() CheckoutRequest {
	return CheckoutRequest{
		Currency: "USD",
		Lines: []domain.OrderLine{
			{ItemID: "sku-1", Name: "Burger", Qty: 1, UnitPriceMinor: 1000},
			{ItemID: "sku-2", Name: "Fries", Qty: 1, UnitPriceMinor: 1500},
		},
		Payment: domain.PaymentFact{
			Method:        domain.PaymentMethodCash,
			TenderedMinor: 2500,
		},
		DatasetVersions: domain.DatasetVersions{"menu": "v3"},
	}
}

func TestCheckoutOfflineCashSettles(t *testing.T) {
	store := memory.NewOfflineOrderRepository()
	conn := connectivity.NewMonitor(false, nil)
	g := New(conn, &fakeLive{}, store)
	defer g.Close()

	result, err := g.ProcessCheckout(context.Background(), cashRequest(), nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !result.Offline || result.LocalID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	record, err := store.Get(result.LocalID)
	if err != nil {
		t.Fatalf("record not in ledger: %v", err)
	}
	if record.Status != domain.SyncStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if record.Payload.Totals.TotalMinor != 2500 {
		t.Fatalf("total = %d, want 2500", record.Payload.Totals.TotalMinor)
	}
	if record.Payments[0].ChangeMinor != 0 {
		t.Fatalf("change = %d, want 0", record.Payments[0].ChangeMinor)
	}
	if len(record.InventoryDeltas) != 2 || record.InventoryDeltas[0].QtyDelta != -1 {
		t.Fatalf("unexpected inventory deltas: %+v", record.InventoryDeltas)
	}
	if record.DatasetVersions["menu"] != "v3" {
		t.Fatalf("dataset versions not captured: %+v", record.DatasetVersions)
	}
}

func TestCheckoutOfflineRejectsCardBeforeWrite(t *testing.T) {
	store := memory.NewOfflineOrderRepository()
	conn := connectivity.NewMonitor(false, nil)
	g := New(conn, &fakeLive{}, store)
	defer g.Close()

	req := cashRequest()
	req.Payment.Method = domain.PaymentMethodCard

	_, err := g.ProcessCheckout(context.Background(), req, nil)
	if !errors.Is(err, domain.ErrPaymentMethodOffline) {
		t.Fatalf("expected ErrPaymentMethodOffline, got %v", err)
	}

	pending, _ := store.CountByStatus(domain.SyncStatusPending)
	if pending != 0 {
		t.Fatalf("rejected checkout must not touch the ledger, got %d records", pending)
	}
}

func TestCheckoutOfflineCheckIsCashEquivalent(t *testing.T) {
	g, _, _ := newTestGateway(t, false)

	req := cashRequest()
	req.Payment.Method = domain.PaymentMethodCheck

	result, err := g.ProcessCheckout(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("check payment must settle offline: %v", err)
	}
	if !result.Offline {
		t.Fatalf("expected offline settlement")
	}
}

func TestCheckoutOfflineInsufficientTender(t *testing.T) {
	g, _, _ := newTestGateway(t, false)

	req := cashRequest()
	req.Payment.TenderedMinor = 2000

	_, err := g.ProcessCheckout(context.Background(), req, nil)
	if !errors.Is(err, domain.ErrTenderedInsufficient) {
		t.Fatalf("expected ErrTenderedInsufficient, got %v", err)
	}
}

func TestCheckoutOfflineComputesChange(t *testing.T) {
	store := memory.NewOfflineOrderRepository()
	conn := connectivity.NewMonitor(false, nil)
	g := New(conn, &fakeLive{}, store)
	defer g.Close()

	req := cashRequest()
	req.Payment.TenderedMinor = 3000

	result, err := g.ProcessCheckout(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	record, _ := store.Get(result.LocalID)
	if record.Payments[0].ChangeMinor != 500 {
		t.Fatalf("change = %d, want 500", record.Payments[0].ChangeMinor)
	}
}

func TestCheckoutOfflineAllocatesDiscountAndTax(t *testing.T) {
	store := memory.NewOfflineOrderRepository()
	conn := connectivity.NewMonitor(false, nil)
	g := New(conn, &fakeLive{}, store)
	defer g.Close()

	req := cashRequest()
	req.Discounts = []domain.Discount{{ID: "d1", Name: "Lunch", AmountMinor: 500}}
	req.TaxBasisPoints = 800
	req.Payment.TenderedMinor = 0

	result, err := g.ProcessCheckout(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	record, _ := store.Get(result.LocalID)
	totals := record.Payload.Totals
	if totals.SubtotalMinor != 2500 || totals.DiscountMinor != 500 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	// 8% от налогооблагаемых 2000.
	if totals.TaxMinor != 160 {
		t.Fatalf("tax = %d, want 160", totals.TaxMinor)
	}
	if totals.TotalMinor != 2160 {
		t.Fatalf("total = %d, want 2160", totals.TotalMinor)
	}

	var lineDiscount, lineTax, lineTotal int64
	for _, line := range record.Payload.Lines {
		lineDiscount += line.DiscountMinor
		lineTax += line.TaxMinor
		lineTotal += line.TotalMinor
	}
	if lineDiscount != totals.DiscountMinor {
		t.Fatalf("line discounts %d != order discount %d", lineDiscount, totals.DiscountMinor)
	}
	if lineTax != totals.TaxMinor {
		t.Fatalf("line taxes %d != order tax %d", lineTax, totals.TaxMinor)
	}
	if lineTotal != totals.TotalMinor {
		t.Fatalf("line totals %d != order total %d", lineTotal, totals.TotalMinor)
	}
}

func TestCheckoutDegradesToOfflineOnCashFailure(t *testing.T) {
	store := memory.NewOfflineOrderRepository()
	conn := connectivity.NewMonitor(true, nil)
	g := New(conn, &fakeLive{}, store)
	defer g.Close()
	serverIdentity(g)

	result, err := g.ProcessCheckout(context.Background(), cashRequest(),
		func(context.Context, CheckoutRequest) (CheckoutResult, error) {
			return CheckoutResult{}, errors.New("upstream 502")
		})
	if err != nil {
		t.Fatalf("cash checkout must degrade, not fail: %v", err)
	}
	if !result.Offline {
		t.Fatalf("expected offline settlement after degradation")
	}

	record, getErr := store.Get(result.LocalID)
	if getErr != nil {
		t.Fatalf("degraded checkout must persist a record: %v", getErr)
	}
	// Заказ был создан на сервере: серверная ссылка сохраняется для сверки.
	if record.ServerOrderID != "srv-1" {
		t.Fatalf("server order id = %q, want srv-1", record.ServerOrderID)
	}
}

func TestCheckoutCardFailurePropagates(t *testing.T) {
	g, _, _ := newTestGateway(t, true)
	serverIdentity(g)

	req := cashRequest()
	req.Payment.Method = domain.PaymentMethodCard

	_, err := g.ProcessCheckout(context.Background(), req,
		func(context.Context, CheckoutRequest) (CheckoutResult, error) {
			return CheckoutResult{}, errors.New("processor offline")
		})
	if err == nil {
		t.Fatalf("card failure must propagate")
	}
}

func TestCheckoutLiveSuccessPassesThrough(t *testing.T) {
	g, _, _ := newTestGateway(t, true)
	serverIdentity(g)

	result, err := g.ProcessCheckout(context.Background(), cashRequest(),
		func(context.Context, CheckoutRequest) (CheckoutResult, error) {
			return CheckoutResult{
				Identity:      domain.ServerIdentity("srv-1"),
				ServerOrderID: "srv-1",
				OrderNumber:   "W-0042",
			}, nil
		})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Offline || result.OrderNumber != "W-0042" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckoutOfflineAssignsIdentityWhenMissing(t *testing.T) {
	g, _, _ := newTestGateway(t, false)

	if !g.Identity().IsZero() {
		t.Fatalf("precondition: no identity yet")
	}
	result, err := g.ProcessCheckout(context.Background(), cashRequest(), nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got := g.Identity(); !got.IsLocal() || got.Value != result.LocalID {
		t.Fatalf("gateway identity = %+v, want local %s", got, result.LocalID)
	}
}

func TestBuildOfflineRecordKeepsTimescale(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	record, err := buildOfflineRecord(domain.OrderIdentity{}, cashRequest(), now)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	if !record.CreatedAt.Equal(now) || !record.Payload.CreatedAt.Equal(now) {
		t.Fatalf("record timestamps must be the sale time")
	}
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		t.Fatalf("record must satisfy invariants: %v", errs)
	}
}
