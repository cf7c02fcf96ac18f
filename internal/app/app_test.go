package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/gateway"
	"github.com/2jz-code/pos-sync/internal/ingest"
	"github.com/2jz-code/pos-sync/internal/reconcile"
	"github.com/2jz-code/pos-sync/internal/storage/memory"
)

// ingestServer — тестовый сервер заказов: помнит operation_id, повтор
// возвращает прежний заказ.
type ingestServer struct {
	mu      sync.Mutex
	submits int
	orders  map[string]string
}

func (s *ingestServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload domain.IngestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.submits++
		orderID, ok := s.orders[payload.OperationID]
		if !ok {
			orderID = "srv-100"
			s.orders[payload.OperationID] = orderID
		}
		s.mu.Unlock()

		_ = json.NewEncoder(w).Encode(domain.IngestResponse{
			Status:      domain.IngestStatusSuccess,
			OrderID:     orderID,
			OrderNumber: "W-0042",
		})
	}
}

func TestOfflineSaleSyncsAfterReconnect(t *testing.T) {
	server := &ingestServer{orders: make(map[string]string)}
	httpServer := httptest.NewServer(server.handler())
	defer httpServer.Close()

	store := memory.NewOfflineOrderRepository()
	monitor := connectivity.NewMonitor(false, nil)
	defer monitor.Close()

	client := ingest.NewClient(httpServer.URL, "", nil)
	reconciler := reconcile.New(store, client, monitor, "terminal-7")

	g := gateway.New(monitor, nil, store, gateway.WithFlusher(reconciler))
	defer g.Close()

	// Продажа офлайн: два товара за наличные.
	result, err := g.ProcessCheckout(context.Background(), gateway.CheckoutRequest{
		Currency: "USD",
		Lines: []domain.OrderLine{
			{ItemID: "sku-1", Name: "Burger", Qty: 1, UnitPriceMinor: 1000},
			{ItemID: "sku-2", Name: "Fries", Qty: 1, UnitPriceMinor: 1500},
		},
		Payment: domain.PaymentFact{Method: domain.PaymentMethodCash, TenderedMinor: 2500},
	}, nil)
	if err != nil {
		t.Fatalf("offline checkout: %v", err)
	}
	if !result.Offline {
		t.Fatalf("expected offline settlement")
	}

	record, err := store.Get(result.LocalID)
	if err != nil {
		t.Fatalf("record not in ledger: %v", err)
	}
	if record.Status != domain.SyncStatusPending || record.Payload.Totals.TotalMinor != 2500 {
		t.Fatalf("unexpected pending record: %+v", record)
	}

	// Возврат связности запускает фоновую сверку.
	monitor.Set(true)

	deadline := time.After(2 * time.Second)
	for {
		record, err = store.Get(result.LocalID)
		if err != nil {
			t.Fatalf("get record: %v", err)
		}
		if record.Status == domain.SyncStatusSynced {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("record never synced, status = %s", record.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if record.ServerOrderID != "srv-100" || record.ServerOrderNumber != "W-0042" {
		t.Fatalf("server identity not recorded: %+v", record)
	}

	// Повторная сверка ничего не отправляет: журнал уже чист.
	report, err := reconciler.Flush(context.Background())
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if report.Attempted != 0 {
		t.Fatalf("second flush must be a no-op, report = %+v", report)
	}

	server.mu.Lock()
	submits := server.submits
	server.mu.Unlock()
	if submits != 1 {
		t.Fatalf("server must receive exactly one submission, got %d", submits)
	}
}

func TestDependenciesWireMemoryLedgerByDefault(t *testing.T) {
	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg.StartOnline = false

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Ledger != nil {
		t.Fatalf("empty ledger path must select the in-memory ledger")
	}
	if deps.Store == nil || deps.Gateway == nil || deps.Reconciler == nil || deps.Channel == nil {
		t.Fatalf("dependencies incomplete: %+v", deps)
	}
	if deps.Producer != nil {
		t.Fatalf("kafka must stay disabled without brokers")
	}
}

func TestDependenciesOpenDurableLedger(t *testing.T) {
	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg.LedgerPath = t.TempDir() + "/ledger.db"
	cfg.StartOnline = false

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Ledger == nil {
		t.Fatalf("ledger path must open the durable ledger")
	}
	if err := deps.Ledger.Ping(context.Background()); err != nil {
		t.Fatalf("ledger ping: %v", err)
	}
}
