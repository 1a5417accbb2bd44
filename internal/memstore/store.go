// Package memstore keeps the planning data in process memory. Transactions
// run against a copy of the state that replaces the live state on success,
// so a failed transaction leaves nothing behind.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-planning/internal/orders"
)

type state struct {
	customers  map[int64]orders.Customer
	warehouses map[int64]orders.Warehouse
	items      map[int64]orders.Item
	lines      map[int64]orders.InventoryLine
	distances  map[int64]orders.DistanceEntry
	orders     map[int64]orders.Order
	seq        map[string]int64
}

func newState() *state {
	return &state{
		customers:  map[int64]orders.Customer{},
		warehouses: map[int64]orders.Warehouse{},
		items:      map[int64]orders.Item{},
		lines:      map[int64]orders.InventoryLine{},
		distances:  map[int64]orders.DistanceEntry{},
		orders:     map[int64]orders.Order{},
		seq:        map[string]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		customers:  maps.Clone(s.customers),
		warehouses: maps.Clone(s.warehouses),
		items:      maps.Clone(s.items),
		lines:      maps.Clone(s.lines),
		distances:  maps.Clone(s.distances),
		orders:     maps.Clone(s.orders),
		seq:        maps.Clone(s.seq),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store implements orders.Store.
type Store struct {
	repo
	mu sync.Mutex
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.repo = repo{st: newState(), mu: &s.mu, now: time.Now}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r orders.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &repo{st: s.st.clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// repo works on one state. mu is nil inside a transaction, where the store
// lock is already held.
type repo struct {
	st  *state
	mu  *sync.Mutex
	now func() time.Time
}

func (r *repo) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, orders.ErrNotFound)
}

func page[T any](m map[int64]T, p orders.Page) []T {
	p = p.Normalize()
	ids := slices.Sorted(maps.Keys(m))
	slices.Reverse(ids)
	out := []T{}
	for i := p.Offset; i < len(ids) && len(out) < p.Limit; i++ {
		out = append(out, m[ids[i]])
	}
	return out
}

func all[T any](m map[int64]T) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// ---- customers ----

func (r *repo) InsertCustomer(_ context.Context, c orders.Customer) (orders.Customer, error) {
	defer r.lock()()
	for _, x := range r.st.customers {
		if x.Name == c.Name {
			return orders.Customer{}, fmt.Errorf("customer %q: %w", c.Name, orders.ErrAlreadyExists)
		}
	}
	c.ID = r.st.next("customers")
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	r.st.customers[c.ID] = c
	return c, nil
}

func (r *repo) GetCustomer(_ context.Context, id int64) (orders.Customer, error) {
	defer r.lock()()
	c, ok := r.st.customers[id]
	if !ok {
		return orders.Customer{}, notFound("customer", id)
	}
	return c, nil
}

func (r *repo) ListCustomers(_ context.Context, p orders.Page) ([]orders.Customer, error) {
	defer r.lock()()
	return page(r.st.customers, p), nil
}

func (r *repo) AllCustomers(context.Context) ([]orders.Customer, error) {
	defer r.lock()()
	return all(r.st.customers), nil
}

func (r *repo) RenameCustomer(_ context.Context, id int64, name string) (orders.Customer, error) {
	defer r.lock()()
	c, ok := r.st.customers[id]
	if !ok {
		return orders.Customer{}, notFound("customer", id)
	}
	for _, x := range r.st.customers {
		if x.Name == name && x.ID != id {
			return orders.Customer{}, fmt.Errorf("customer %q: %w", name, orders.ErrAlreadyExists)
		}
	}
	c.Name = name
	r.st.customers[id] = c
	return c, nil
}

func (r *repo) DeleteCustomer(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.customers[id]; !ok {
		return notFound("customer", id)
	}
	for _, d := range r.st.distances {
		if d.CustomerID == id {
			return fmt.Errorf("customer %d still has distance entries: %w", id, orders.ErrConflict)
		}
	}
	delete(r.st.customers, id)
	return nil
}

// ---- warehouses ----

func (r *repo) InsertWarehouse(_ context.Context, w orders.Warehouse) (orders.Warehouse, error) {
	defer r.lock()()
	for _, x := range r.st.warehouses {
		if x.Name == w.Name {
			return orders.Warehouse{}, fmt.Errorf("warehouse %q: %w", w.Name, orders.ErrAlreadyExists)
		}
	}
	w.ID = r.st.next("warehouses")
	w.Items = nil
	if w.CreatedAt.IsZero() {
		w.CreatedAt = r.now().UTC()
	}
	r.st.warehouses[w.ID] = w
	w.Items = []orders.InventoryLine{}
	return w, nil
}

func (r *repo) GetWarehouse(_ context.Context, id int64) (orders.Warehouse, error) {
	defer r.lock()()
	w, ok := r.st.warehouses[id]
	if !ok {
		return orders.Warehouse{}, notFound("warehouse", id)
	}
	w.Items = r.linesOf(id)
	return w, nil
}

func (r *repo) LockWarehouse(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.warehouses[id]; !ok {
		return notFound("warehouse", id)
	}
	return nil
}

func (r *repo) ListWarehouses(_ context.Context, p orders.Page) ([]orders.Warehouse, error) {
	defer r.lock()()
	out := page(r.st.warehouses, p)
	for i := range out {
		out[i].Items = r.linesOf(out[i].ID)
	}
	return out, nil
}

func (r *repo) AllWarehouses(context.Context) ([]orders.Warehouse, error) {
	defer r.lock()()
	return all(r.st.warehouses), nil
}

func (r *repo) RenameWarehouse(_ context.Context, id int64, name string) (orders.Warehouse, error) {
	defer r.lock()()
	w, ok := r.st.warehouses[id]
	if !ok {
		return orders.Warehouse{}, notFound("warehouse", id)
	}
	for _, x := range r.st.warehouses {
		if x.Name == name && x.ID != id {
			return orders.Warehouse{}, fmt.Errorf("warehouse %q: %w", name, orders.ErrAlreadyExists)
		}
	}
	w.Name = name
	r.st.warehouses[id] = w
	w.Items = r.linesOf(id)
	return w, nil
}

func (r *repo) DeleteWarehouse(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.warehouses[id]; !ok {
		return notFound("warehouse", id)
	}
	for _, d := range r.st.distances {
		if d.WarehouseID == id {
			return fmt.Errorf("warehouse %d still has distance entries: %w", id, orders.ErrConflict)
		}
	}
	if len(r.linesOf(id)) > 0 {
		return fmt.Errorf("warehouse %d still has inventory lines: %w", id, orders.ErrConflict)
	}
	delete(r.st.warehouses, id)
	return nil
}

// ---- items ----

func (r *repo) InsertItem(_ context.Context, name string) (orders.Item, error) {
	defer r.lock()()
	for _, x := range r.st.items {
		if x.Name == name {
			return orders.Item{}, fmt.Errorf("item %q: %w", name, orders.ErrAlreadyExists)
		}
	}
	it := orders.Item{ID: r.st.next("items"), Name: name}
	r.st.items[it.ID] = it
	return it, nil
}

func (r *repo) GetItem(_ context.Context, id int64) (orders.Item, error) {
	defer r.lock()()
	it, ok := r.st.items[id]
	if !ok {
		return orders.Item{}, notFound("item", id)
	}
	return it, nil
}

func (r *repo) GetItemByName(_ context.Context, name string) (orders.Item, error) {
	defer r.lock()()
	for _, it := range r.st.items {
		if it.Name == name {
			return it, nil
		}
	}
	return orders.Item{}, notFound("item", fmt.Sprintf("%q", name))
}

func (r *repo) ListItems(_ context.Context, p orders.Page) ([]orders.Item, error) {
	defer r.lock()()
	return page(r.st.items, p), nil
}

func (r *repo) RenameItem(_ context.Context, id int64, name string) (orders.Item, error) {
	defer r.lock()()
	it, ok := r.st.items[id]
	if !ok {
		return orders.Item{}, notFound("item", id)
	}
	for _, x := range r.st.items {
		if x.Name == name && x.ID != id {
			return orders.Item{}, fmt.Errorf("item %q: %w", name, orders.ErrAlreadyExists)
		}
	}
	it.Name = name
	r.st.items[id] = it
	for lid, ln := range r.st.lines {
		if ln.Item.ID == id {
			ln.Item = it
			r.st.lines[lid] = ln
		}
	}
	return it, nil
}

func (r *repo) DeleteItem(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.items[id]; !ok {
		return notFound("item", id)
	}
	delete(r.st.items, id)
	return nil
}

func (r *repo) ItemInUse(_ context.Context, id int64) (bool, error) {
	defer r.lock()()
	for _, ln := range r.st.lines {
		if ln.Item.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// ---- inventory lines ----

func (r *repo) linesOf(warehouseID int64) []orders.InventoryLine {
	out := []orders.InventoryLine{}
	for _, ln := range r.st.lines {
		if ln.WarehouseID == warehouseID {
			out = append(out, ln)
		}
	}
	slices.SortFunc(out, func(a, b orders.InventoryLine) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *repo) ListLines(_ context.Context, warehouseID int64) ([]orders.InventoryLine, error) {
	defer r.lock()()
	return r.linesOf(warehouseID), nil
}

func (r *repo) InsertLine(_ context.Context, warehouseID int64, item orders.Item, amount float64) (orders.InventoryLine, error) {
	defer r.lock()()
	if _, ok := r.st.warehouses[warehouseID]; !ok {
		return orders.InventoryLine{}, notFound("warehouse", warehouseID)
	}
	if _, ok := r.st.items[item.ID]; !ok {
		return orders.InventoryLine{}, notFound("item", item.ID)
	}
	if !(amount >= 0) || math.IsInf(amount, 1) {
		return orders.InventoryLine{}, fmt.Errorf("line amount %v: %w", amount, orders.ErrInvalidInput)
	}
	ln := orders.InventoryLine{ID: r.st.next("lines"), WarehouseID: warehouseID, Item: item, Amount: amount}
	r.st.lines[ln.ID] = ln
	return ln, nil
}

func (r *repo) UpdateLineAmount(_ context.Context, lineID int64, amount float64) error {
	defer r.lock()()
	ln, ok := r.st.lines[lineID]
	if !ok {
		return notFound("inventory line", lineID)
	}
	if !(amount >= 0) || math.IsInf(amount, 1) {
		return fmt.Errorf("line amount %v: %w", amount, orders.ErrInvalidInput)
	}
	ln.Amount = amount
	r.st.lines[lineID] = ln
	return nil
}

// LockMatrix is a no-op: WithinTx already runs one transaction at a time.
func (r *repo) LockMatrix(context.Context) error { return nil }

func (r *repo) DeleteLine(_ context.Context, lineID int64) error {
	defer r.lock()()
	if _, ok := r.st.lines[lineID]; !ok {
		return notFound("inventory line", lineID)
	}
	delete(r.st.lines, lineID)
	return nil
}

func (r *repo) DeleteLinesForWarehouse(_ context.Context, warehouseID int64) error {
	defer r.lock()()
	for id, ln := range r.st.lines {
		if ln.WarehouseID == warehouseID {
			delete(r.st.lines, id)
		}
	}
	return nil
}

// ---- distances ----

func (r *repo) InsertDistances(_ context.Context, entries []orders.DistanceEntry) error {
	defer r.lock()()
	for _, e := range entries {
		for _, d := range r.st.distances {
			if d.CustomerID == e.CustomerID && d.WarehouseID == e.WarehouseID {
				return fmt.Errorf("distance (%d,%d): %w", e.CustomerID, e.WarehouseID, orders.ErrAlreadyExists)
			}
		}
		e.ID = r.st.next("distances")
		r.st.distances[e.ID] = e
	}
	return nil
}

func (r *repo) GetDistance(_ context.Context, id int64) (orders.DistanceEntry, error) {
	defer r.lock()()
	d, ok := r.st.distances[id]
	if !ok {
		return orders.DistanceEntry{}, notFound("distance", id)
	}
	return d, nil
}

func (r *repo) GetDistanceFor(_ context.Context, customerID, warehouseID int64) (orders.DistanceEntry, error) {
	defer r.lock()()
	for _, d := range r.st.distances {
		if d.CustomerID == customerID && d.WarehouseID == warehouseID {
			return d, nil
		}
	}
	return orders.DistanceEntry{}, notFound("distance", fmt.Sprintf("(%d,%d)", customerID, warehouseID))
}

func (r *repo) RankedDistances(_ context.Context, customerID int64) ([]orders.DistanceEntry, error) {
	defer r.lock()()
	out := []orders.DistanceEntry{}
	for _, d := range r.st.distances {
		if d.CustomerID == customerID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b orders.DistanceEntry) int {
		if c := cmp.Compare(a.DistanceValue, b.DistanceValue); c != 0 {
			return c
		}
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})
	return out, nil
}

func (r *repo) DeleteDistancesForCustomer(_ context.Context, customerID int64) (int64, error) {
	defer r.lock()()
	var n int64
	for id, d := range r.st.distances {
		if d.CustomerID == customerID {
			delete(r.st.distances, id)
			n++
		}
	}
	return n, nil
}

func (r *repo) DeleteDistancesForWarehouse(_ context.Context, warehouseID int64) (int64, error) {
	defer r.lock()()
	var n int64
	for id, d := range r.st.distances {
		if d.WarehouseID == warehouseID {
			delete(r.st.distances, id)
			n++
		}
	}
	return n, nil
}

// ---- orders ----

func (r *repo) InsertOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	defer r.lock()()
	if o.ExternalID != "" {
		for _, x := range r.st.orders {
			if x.ExternalID == o.ExternalID {
				return orders.Order{}, fmt.Errorf("order %q: %w", o.ExternalID, orders.ErrAlreadyExists)
			}
		}
	}
	o.ID = r.st.next("orders")
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now().UTC()
	}
	r.st.orders[o.ID] = o
	return o, nil
}

func (r *repo) GetOrder(_ context.Context, id int64) (orders.Order, error) {
	defer r.lock()()
	o, ok := r.st.orders[id]
	if !ok {
		return orders.Order{}, notFound("order", id)
	}
	return o, nil
}

func (r *repo) ListOrders(_ context.Context, p orders.Page) ([]orders.Order, error) {
	defer r.lock()()
	return page(r.st.orders, p), nil
}

func (r *repo) DeleteOrder(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.orders[id]; !ok {
		return notFound("order", id)
	}
	delete(r.st.orders, id)
	return nil
}
