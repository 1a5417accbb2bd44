package fulfillment

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-order-planning/internal/inventory"
	"github.com/ariefcatur/go-order-planning/internal/memstore"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []orders.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ []byte, ev orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType
	}
	return out
}

type mapIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (m *mapIdempotency) Lookup(_ context.Context, id string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[id]
	return v, ok, nil
}

func (m *mapIdempotency) Remember(_ context.Context, id string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[id] = orderID
	return nil
}

type fixture struct {
	store    *memstore.Store
	pub      *recordingPublisher
	planner  *Planner
	customer orders.Customer
}

// newFixture creates customer C1. Warehouses are attached with fixed cached
// distances so routing does not depend on coordinates.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	c, err := store.InsertCustomer(context.Background(), orders.Customer{Name: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	return &fixture{
		store: store,
		pub:   pub,
		planner: &Planner{
			Store:       store,
			Locker:      inventory.NewLocalLocker(),
			Publisher:   pub,
			Log:         zap.NewNop(),
			ServiceName: "test",
		},
		customer: c,
	}
}

func (f *fixture) warehouse(t *testing.T, name string, km float64, lines ...orders.LineInput) orders.Warehouse {
	t.Helper()
	ctx := context.Background()
	var out orders.Warehouse
	err := f.store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		w, err := r.InsertWarehouse(ctx, orders.Warehouse{Name: name})
		if err != nil {
			return err
		}
		if err := inventory.Seed(ctx, r, w.ID, lines); err != nil {
			return err
		}
		out = w
		return r.InsertDistances(ctx, []orders.DistanceEntry{{CustomerID: f.customer.ID, WarehouseID: w.ID, DistanceValue: km}})
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func (f *fixture) lines(t *testing.T, w orders.Warehouse) []orders.InventoryLine {
	t.Helper()
	got, err := f.store.GetWarehouse(context.Background(), w.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got.Items
}

func choc(amount float64) orders.LineInput { return orders.LineInput{ItemName: "Choc", Amount: amount} }

func TestPlace_FartherWarehouseWhenNearestLineTooSmall(t *testing.T) {
	f := newFixture(t)
	w1 := f.warehouse(t, "W1", 10, choc(5))
	w2 := f.warehouse(t, "W2", 3, choc(2))

	o, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 5})
	if err != nil {
		t.Fatal(err)
	}
	if o.WarehouseID != w1.ID || o.Distance != 10 {
		t.Fatalf("order = %+v, want W1 at 10 km", o)
	}
	if got := f.lines(t, w1); len(got) != 0 {
		t.Fatalf("W1 lines = %+v, want drained line removed", got)
	}
	if got := f.lines(t, w2); len(got) != 1 || got[0].Amount != 2 {
		t.Fatalf("W2 lines = %+v, want untouched", got)
	}
	stored, err := f.store.GetOrder(context.Background(), o.ID)
	if err != nil || stored.WarehouseID != w1.ID {
		t.Fatalf("stored order = %+v, %v", stored, err)
	}
	if ts := f.pub.types(); len(ts) != 1 || ts[0] != orders.EventOrderFulfilled {
		t.Fatalf("events = %v", ts)
	}
}

func TestPlace_NearestSufficientWins(t *testing.T) {
	f := newFixture(t)
	f.warehouse(t, "far", 50, choc(100))
	near := f.warehouse(t, "near", 4, choc(10))

	o, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if o.WarehouseID != near.ID || o.Distance != 4 {
		t.Fatalf("order = %+v, want nearest", o)
	}
}

func TestPlace_UnfulfillableLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	w1 := f.warehouse(t, "W1", 10, choc(60), choc(30))
	w2 := f.warehouse(t, "W2", 3, choc(50))

	_, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 100})
	if !errors.Is(err, orders.ErrUnfulfillable) {
		t.Fatalf("err = %v, want unfulfillable", err)
	}
	if got := f.lines(t, w1); len(got) != 2 || got[0].Amount != 60 || got[1].Amount != 30 {
		t.Fatalf("W1 lines changed: %+v", got)
	}
	if got := f.lines(t, w2); len(got) != 1 || got[0].Amount != 50 {
		t.Fatalf("W2 lines changed: %+v", got)
	}
	if os, _ := f.store.ListOrders(context.Background(), orders.Page{}); len(os) != 0 {
		t.Fatalf("orders persisted: %+v", os)
	}
	if ranked, _ := f.store.RankedDistances(context.Background(), f.customer.ID); len(ranked) != 2 {
		t.Fatalf("distance entries changed: %+v", ranked)
	}
	if ts := f.pub.types(); len(ts) != 1 || ts[0] != orders.EventOrderRejected {
		t.Fatalf("events = %v", ts)
	}
}

func TestPlace_FirstFitLineInsideWarehouse(t *testing.T) {
	f := newFixture(t)
	w := f.warehouse(t, "W", 1, choc(2), choc(7), choc(9))

	if _, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 5}); err != nil {
		t.Fatal(err)
	}
	got := f.lines(t, w)
	if len(got) != 3 || got[0].Amount != 2 || got[1].Amount != 2 || got[2].Amount != 9 {
		t.Fatalf("lines = %+v, want 2,2,9", got)
	}
}

func TestPlace_EqualDistanceGoesToOlderWarehouse(t *testing.T) {
	f := newFixture(t)
	first := f.warehouse(t, "first", 5, choc(10))
	f.warehouse(t, "second", 5, choc(10))

	o, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if o.WarehouseID != first.ID {
		t.Fatalf("picked warehouse %d, want %d", o.WarehouseID, first.ID)
	}
}

func TestPlace_Deterministic(t *testing.T) {
	var picked []string
	for i := 0; i < 3; i++ {
		f := newFixture(t)
		f.warehouse(t, "A", 7, choc(1))
		f.warehouse(t, "B", 7, choc(4))
		f.warehouse(t, "C", 2, choc(3), choc(8))
		o, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 4})
		if err != nil {
			t.Fatal(err)
		}
		w, _ := f.store.GetWarehouse(context.Background(), o.WarehouseID)
		picked = append(picked, w.Name)
	}
	for _, p := range picked {
		if p != "C" {
			t.Fatalf("picks = %v, want C every time", picked)
		}
	}
}

func TestPlace_Validation(t *testing.T) {
	f := newFixture(t)
	f.warehouse(t, "W", 1, choc(5))
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown item", Request{CustomerID: f.customer.ID, ItemName: "Tea", Amount: 1}, orders.ErrNotFound},
		{"unknown customer", Request{CustomerID: 999, ItemName: "Choc", Amount: 1}, orders.ErrNotFound},
		{"zero amount", Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 0}, orders.ErrInvalidInput},
		{"NaN amount", Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: math.NaN()}, orders.ErrInvalidInput},
		{"infinite amount", Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: math.Inf(1)}, orders.ErrInvalidInput},
		{"unknown item beats zero amount", Request{CustomerID: f.customer.ID, ItemName: "Tea", Amount: 0}, orders.ErrNotFound},
		{"unknown customer beats zero amount", Request{CustomerID: 999, ItemName: "Choc", Amount: 0}, orders.ErrNotFound},
		{"blank item", Request{CustomerID: f.customer.ID, ItemName: "", Amount: 1}, orders.ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := f.planner.Place(context.Background(), c.req); !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
	if ts := f.pub.types(); len(ts) != 0 {
		t.Fatalf("validation failures published %v", ts)
	}
}

func TestPlace_ConcurrentOrdersNeverOverAllocate(t *testing.T) {
	f := newFixture(t)
	w := f.warehouse(t, "W", 1, choc(10))

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 1})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, orders.ErrUnfulfillable):
				rejected.Add(1)
			default:
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 10 || rejected.Load() != 30 {
		t.Fatalf("fulfilled=%d rejected=%d, want 10/30", ok.Load(), rejected.Load())
	}
	if got := f.lines(t, w); len(got) != 0 {
		t.Fatalf("lines = %+v, want empty", got)
	}
}

func TestPlace_ReplaysExternalID(t *testing.T) {
	f := newFixture(t)
	w := f.warehouse(t, "W", 1, choc(5))
	f.planner.Idempotency = &mapIdempotency{keys: map[string]int64{}}

	req := Request{ExternalID: "ext-1", CustomerID: f.customer.ID, ItemName: "Choc", Amount: 2}
	first, err := f.planner.Place(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.planner.Place(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay produced order %d, want %d", second.ID, first.ID)
	}
	if got := f.lines(t, w); got[0].Amount != 3 {
		t.Fatalf("amount = %v, want stock taken once", got[0].Amount)
	}
}

// vanishingStore ranks a warehouse that no longer exists ahead of the real ones.
type vanishingStore struct {
	*memstore.Store
}

func (s vanishingStore) RankedDistances(ctx context.Context, customerID int64) ([]orders.DistanceEntry, error) {
	ranked, err := s.Store.RankedDistances(ctx, customerID)
	return append([]orders.DistanceEntry{{ID: 999, CustomerID: customerID, WarehouseID: 999, DistanceValue: 0}}, ranked...), err
}

func TestPlace_SkipsWarehouseDeletedAfterRanking(t *testing.T) {
	f := newFixture(t)
	w := f.warehouse(t, "W", 8, choc(5))
	f.planner.Store = vanishingStore{f.store}

	o, err := f.planner.Place(context.Background(), Request{CustomerID: f.customer.ID, ItemName: "Choc", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if o.WarehouseID != w.ID {
		t.Fatalf("order = %+v", o)
	}
}

func TestStatusTransitions(t *testing.T) {
	legal := [][2]orders.Status{
		{orders.StatusValidating, orders.StatusSearching},
		{orders.StatusValidating, orders.StatusRejected},
		{orders.StatusSearching, orders.StatusCommitting},
		{orders.StatusSearching, orders.StatusRejected},
		{orders.StatusCommitting, orders.StatusFulfilled},
	}
	for _, tr := range legal {
		if !orders.CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}
	if orders.CanTransition(orders.StatusValidating, orders.StatusFulfilled) {
		t.Error("validating -> fulfilled should be illegal")
	}
	if orders.CanTransition(orders.StatusRejected, orders.StatusSearching) {
		t.Error("rejected is terminal")
	}
}
