package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-order-planning/internal/memstore"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type memDedup struct {
	mu     sync.Mutex
	seen   map[string]bool
	forgot []string
}

func (d *memDedup) MarkProcessed(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	d.forgot = append(d.forgot, id)
	return nil
}

func requestMessage(t *testing.T, p orders.OrderRequestedPayload) (kafkago.Message, orders.Envelope) {
	t.Helper()
	ev, err := orders.NewEnvelope(orders.EventOrderRequested, "test", p.CustomerID, p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafkago.Message{Topic: orders.TopicOrderRequested, Value: b}, ev
}

func TestHandleOrderRequested_PlacesOnce(t *testing.T) {
	f := newFixture(t)
	w := f.warehouse(t, "W", 1, choc(5))
	dedup := &memDedup{seen: map[string]bool{}}
	h := &RequestHandler{Planner: f.planner, Dedup: dedup, Log: zap.NewNop()}

	m, _ := requestMessage(t, orders.OrderRequestedPayload{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 2})
	for i := 0; i < 2; i++ {
		if err := h.HandleOrderRequested(context.Background(), m); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.lines(t, w); got[0].Amount != 3 {
		t.Fatalf("amount = %v, want one fulfilment", got[0].Amount)
	}
}

func TestHandleOrderRequested_FinalOutcomesCommit(t *testing.T) {
	f := newFixture(t)
	f.warehouse(t, "W", 1, choc(5))
	h := &RequestHandler{Planner: f.planner, Log: zap.NewNop()}

	unfulfillable, _ := requestMessage(t, orders.OrderRequestedPayload{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 50})
	unknown, _ := requestMessage(t, orders.OrderRequestedPayload{CustomerID: 404, ItemName: "Choc", Amount: 1})
	for _, m := range []kafkago.Message{unfulfillable, unknown, {Value: []byte("not json")}} {
		if err := h.HandleOrderRequested(context.Background(), m); err != nil {
			t.Fatalf("final outcome returned %v", err)
		}
	}
}

func TestHandleOrderRequested_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	h := &RequestHandler{Planner: f.planner, Log: zap.NewNop()}
	ev, _ := orders.NewEnvelope(orders.EventStockAdjusted, "test", 1, orders.StockAdjustedPayload{})
	b, _ := json.Marshal(ev)
	if err := h.HandleOrderRequested(context.Background(), kafkago.Message{Value: b}); err != nil {
		t.Fatal(err)
	}
}

// brokenStore fails every item lookup like an unreachable database.
type brokenStore struct {
	*memstore.Store
}

var errDBDown = errors.New("db down")

func (brokenStore) GetItemByName(context.Context, string) (orders.Item, error) {
	return orders.Item{}, errDBDown
}

func TestHandleOrderRequested_StorageFailureRetries(t *testing.T) {
	f := newFixture(t)
	f.planner.Store = brokenStore{f.store}
	dedup := &memDedup{seen: map[string]bool{}}
	h := &RequestHandler{Planner: f.planner, Dedup: dedup, Log: zap.NewNop()}

	m, ev := requestMessage(t, orders.OrderRequestedPayload{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 1})
	if err := h.HandleOrderRequested(context.Background(), m); !errors.Is(err, errDBDown) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if len(dedup.forgot) != 1 || dedup.forgot[0] != ev.EventID {
		t.Fatalf("dedup mark not dropped: %v", dedup.forgot)
	}
}
