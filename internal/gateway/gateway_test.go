package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2jz-code/pos-sync/internal/channel"
	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/reconcile"
	"github.com/2jz-code/pos-sync/internal/storage/memory"
)

// fakeLive записывает исходящие сообщения и подключения live-канала.
type fakeLive struct {
	mu          sync.Mutex
	sent        []channel.OutboundMessage
	connects    []domain.OrderIdentity
	disconnects int
	failSend    bool
}

func (f *fakeLive) Connect(identity domain.OrderIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, identity)
	return nil
}

func (f *fakeLive) Send(msg channel.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("socket closed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeLive) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeLive) sentMessages() []channel.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]channel.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFlusher считает запуски сверки.
type fakeFlusher struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (f *fakeFlusher) Flush(context.Context) (reconcile.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return reconcile.Report{}, nil
}

func newTestGateway(t *testing.T, online bool, options ...Option) (*Gateway, *fakeLive, *connectivity.Monitor) {
	t.Helper()
	conn := connectivity.NewMonitor(online, nil)
	live := &fakeLive{}
	g := New(conn, live, memory.NewOfflineOrderRepository(), options...)
	t.Cleanup(g.Close)
	return g, live, conn
}

func serverIdentity(g *Gateway) {
	g.mu.Lock()
	g.identity = domain.ServerIdentity("srv-1")
	g.mu.Unlock()
}

func addItemOp(itemID string) domain.Operation {
	return domain.Operation{
		Type:    domain.OperationAddItem,
		Payload: map[string]any{"item_id": itemID, "qty": 1},
	}
}

func TestEnqueueOperationCoalescesBatch(t *testing.T) {
	g, live, _ := newTestGateway(t, true, WithBatchWindow(20*time.Millisecond))
	serverIdentity(g)

	items := []string{"sku-1", "sku-2", "sku-3", "sku-4", "sku-5"}
	for _, item := range items {
		if err := g.EnqueueOperation(addItemOp(item), false); err != nil {
			t.Fatalf("enqueue %s: %v", item, err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	sent := live.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected a single coalesced batch, got %d messages", len(sent))
	}
	if sent[0].Type != "operation_batch" {
		t.Fatalf("message type = %q", sent[0].Type)
	}
	ops, ok := sent[0].Fields["operations"].([]domain.Operation)
	if !ok {
		t.Fatalf("operations field has unexpected type %T", sent[0].Fields["operations"])
	}
	if len(ops) != len(items) {
		t.Fatalf("batch size = %d, want %d", len(ops), len(items))
	}
	for i, item := range items {
		if ops[i].Payload["item_id"] != item {
			t.Fatalf("position %d: got %v, want %s", i, ops[i].Payload["item_id"], item)
		}
	}
}

func TestEnqueueOperationImmediateBypassesWindow(t *testing.T) {
	g, live, _ := newTestGateway(t, true)
	serverIdentity(g)

	op := domain.Operation{Type: domain.OperationApplyDiscount, Payload: map[string]any{"code": "VIP"}}
	if err := g.EnqueueOperation(op, true); err != nil {
		t.Fatalf("enqueue immediate: %v", err)
	}

	sent := live.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected immediate send, got %d messages", len(sent))
	}
	if sent[0].Type != string(domain.OperationApplyDiscount) {
		t.Fatalf("message type = %q", sent[0].Type)
	}
}

func TestEnqueueOperationDroppedWhenOffline(t *testing.T) {
	g, live, _ := newTestGateway(t, false, WithBatchWindow(10*time.Millisecond))

	if err := g.EnqueueOperation(addItemOp("sku-1"), false); err != nil {
		t.Fatalf("enqueue offline: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(live.sentMessages()) != 0 {
		t.Fatalf("offline operations must not reach the live channel")
	}
}

func TestEnqueueOperationDroppedUnderLocalIdentity(t *testing.T) {
	g, live, _ := newTestGateway(t, true, WithBatchWindow(10*time.Millisecond))
	g.mu.Lock()
	g.identity = domain.NewLocalIdentity()
	g.mu.Unlock()

	if err := g.EnqueueOperation(addItemOp("sku-1"), false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(live.sentMessages()) != 0 {
		t.Fatalf("local-identity operations must not reach the live channel")
	}
}

func TestEnqueueOperationAfterClose(t *testing.T) {
	g, _, _ := newTestGateway(t, true)
	g.Close()

	if err := g.EnqueueOperation(addItemOp("sku-1"), false); !errors.Is(err, domain.ErrGatewayClosed) {
		t.Fatalf("expected ErrGatewayClosed, got %v", err)
	}
}

func TestEnsureIdentityOfflineSynthesizesLocal(t *testing.T) {
	g, _, _ := newTestGateway(t, false)

	identity, err := g.EnsureIdentity(context.Background(), domain.OrderDraft{Currency: "USD"}, nil)
	if err != nil {
		t.Fatalf("ensure identity: %v", err)
	}
	if !identity.IsLocal() {
		t.Fatalf("expected local identity offline, got %+v", identity)
	}

	again, err := g.EnsureIdentity(context.Background(), domain.OrderDraft{Currency: "USD"}, nil)
	if err != nil {
		t.Fatalf("ensure identity again: %v", err)
	}
	if again != identity {
		t.Fatalf("identity must be stable, got %+v and %+v", identity, again)
	}
}

func TestEnsureIdentityRemoteSuccessConnectsLive(t *testing.T) {
	g, live, _ := newTestGateway(t, true)

	identity, err := g.EnsureIdentity(context.Background(), domain.OrderDraft{Currency: "USD"},
		func(context.Context, domain.OrderDraft) (domain.OrderIdentity, error) {
			return domain.ServerIdentity("srv-42"), nil
		})
	if err != nil {
		t.Fatalf("ensure identity: %v", err)
	}
	if !identity.IsServer() || identity.Value != "srv-42" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	live.mu.Lock()
	connects := len(live.connects)
	live.mu.Unlock()
	if connects != 1 {
		t.Fatalf("live channel must connect once, got %d", connects)
	}
}

func TestEnsureIdentityRemoteFailureFallsBackToLocal(t *testing.T) {
	g, _, _ := newTestGateway(t, true)

	identity, err := g.EnsureIdentity(context.Background(), domain.OrderDraft{Currency: "USD"},
		func(context.Context, domain.OrderDraft) (domain.OrderIdentity, error) {
			return domain.OrderIdentity{}, errors.New("gateway timeout")
		})
	if err != nil {
		t.Fatalf("order creation must never fail: %v", err)
	}
	if !identity.IsLocal() {
		t.Fatalf("expected local fallback, got %+v", identity)
	}

	// После fail-safe шлюз в офлайн-режиме: операции не идут в live-канал.
	if err := g.EnqueueOperation(addItemOp("sku-1"), true); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestReconnectTriggersFlush(t *testing.T) {
	flusher := &fakeFlusher{done: make(chan struct{}, 1)}
	conn := connectivity.NewMonitor(false, nil)
	g := New(conn, &fakeLive{}, memory.NewOfflineOrderRepository(), WithFlusher(flusher))
	defer g.Close()

	conn.Set(true)

	select {
	case <-flusher.done:
	case <-time.After(time.Second):
		t.Fatalf("reconnect must trigger reconciliation")
	}
}

func TestGoingOfflineDisconnectsLive(t *testing.T) {
	conn := connectivity.NewMonitor(true, nil)
	live := &fakeLive{}
	g := New(conn, live, memory.NewOfflineOrderRepository())
	defer g.Close()

	conn.Set(false)

	deadline := time.After(time.Second)
	for {
		live.mu.Lock()
		disconnects := live.disconnects
		live.mu.Unlock()
		if disconnects > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("going offline must disconnect the live channel")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestResetClearsIdentityAndQueue(t *testing.T) {
	g, live, _ := newTestGateway(t, true, WithBatchWindow(20*time.Millisecond))
	serverIdentity(g)

	if err := g.EnqueueOperation(addItemOp("sku-1"), false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	g.Reset()

	if !g.Identity().IsZero() {
		t.Fatalf("identity must be cleared")
	}
	time.Sleep(80 * time.Millisecond)
	if len(live.sentMessages()) != 0 {
		t.Fatalf("queued operations must not survive a reset")
	}
}
