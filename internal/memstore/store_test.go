package memstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ariefcatur/go-order-planning/internal/orders"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if _, err := r.InsertCustomer(ctx, orders.Customer{Name: "C1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if cs, _ := s.AllCustomers(ctx); len(cs) != 0 {
		t.Fatalf("rolled back insert is visible: %+v", cs)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		_, err := r.InsertCustomer(ctx, orders.Customer{Name: "C1"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if cs, _ := s.AllCustomers(ctx); len(cs) != 1 {
		t.Fatalf("committed insert missing: %+v", cs)
	}
}

func TestUniqueNames(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.InsertItem(ctx, "Choc"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertItem(ctx, "Choc"); !errors.Is(err, orders.ErrAlreadyExists) {
		t.Fatalf("duplicate item: err = %v", err)
	}

	a, _ := s.InsertWarehouse(ctx, orders.Warehouse{Name: "A"})
	if _, err := s.InsertWarehouse(ctx, orders.Warehouse{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RenameWarehouse(ctx, a.ID, "B"); !errors.Is(err, orders.ErrAlreadyExists) {
		t.Fatalf("rename onto taken name: err = %v", err)
	}
	if _, err := s.RenameWarehouse(ctx, a.ID, "A"); err != nil {
		t.Fatalf("rename to own name: %v", err)
	}
}

func TestRenameItemUpdatesLines(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, _ := s.InsertWarehouse(ctx, orders.Warehouse{Name: "W"})
	it, _ := s.InsertItem(ctx, "Choc")
	if _, err := s.InsertLine(ctx, w.ID, it, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RenameItem(ctx, it.ID, "Chocolate"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetWarehouse(ctx, w.ID)
	if got.Items[0].Item.Name != "Chocolate" {
		t.Fatalf("line item = %+v", got.Items[0].Item)
	}
}

func TestDeleteRefusesReferencedOwners(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, _ := s.InsertCustomer(ctx, orders.Customer{Name: "C"})
	w, _ := s.InsertWarehouse(ctx, orders.Warehouse{Name: "W"})
	if err := s.InsertDistances(ctx, []orders.DistanceEntry{{CustomerID: c.ID, WarehouseID: w.ID, DistanceValue: 1}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCustomer(ctx, c.ID); !errors.Is(err, orders.ErrConflict) {
		t.Fatalf("delete customer with entries: err = %v", err)
	}
	if err := s.DeleteWarehouse(ctx, w.ID); !errors.Is(err, orders.ErrConflict) {
		t.Fatalf("delete warehouse with entries: err = %v", err)
	}
	if err := s.InsertDistances(ctx, []orders.DistanceEntry{{CustomerID: c.ID, WarehouseID: w.ID, DistanceValue: 2}}); !errors.Is(err, orders.ErrAlreadyExists) {
		t.Fatalf("second entry for pair: err = %v", err)
	}
	if err := s.DeleteCustomer(ctx, 42); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("delete unknown: err = %v", err)
	}
}

func TestListPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		if _, err := s.InsertItem(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListItems(ctx, orders.Page{Limit: 2, Offset: 1})
	if len(got) != 2 || got[0].Name != "d" || got[1].Name != "c" {
		t.Fatalf("page = %+v, want d,c", got)
	}
	got, _ = s.ListItems(ctx, orders.Page{Limit: 10, Offset: 10})
	if len(got) != 0 {
		t.Fatalf("page past end = %+v", got)
	}
}

func TestRankedDistancesTieBreak(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, _ := s.InsertCustomer(ctx, orders.Customer{Name: "C"})
	var ws []orders.Warehouse
	for _, n := range []string{"W1", "W2", "W3"} {
		w, _ := s.InsertWarehouse(ctx, orders.Warehouse{Name: n})
		ws = append(ws, w)
	}
	err := s.InsertDistances(ctx, []orders.DistanceEntry{
		{CustomerID: c.ID, WarehouseID: ws[2].ID, DistanceValue: 5},
		{CustomerID: c.ID, WarehouseID: ws[1].ID, DistanceValue: 5},
		{CustomerID: c.ID, WarehouseID: ws[0].ID, DistanceValue: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.RankedDistances(ctx, c.ID)
	if got[0].WarehouseID != ws[1].ID || got[1].WarehouseID != ws[2].ID || got[2].WarehouseID != ws[0].ID {
		t.Fatalf("ranked = %+v", got)
	}
}

func TestLineAmountsMustBeFiniteAndNonNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, _ := s.InsertWarehouse(ctx, orders.Warehouse{Name: "W1"})
	it, _ := s.InsertItem(ctx, "Choc")
	ln, err := s.InsertLine(ctx, w.ID, it, 1)
	if err != nil {
		t.Fatal(err)
	}

	for _, amount := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := s.InsertLine(ctx, w.ID, it, amount); !errors.Is(err, orders.ErrInvalidInput) {
			t.Fatalf("insert %v: err = %v", amount, err)
		}
		if err := s.UpdateLineAmount(ctx, ln.ID, amount); !errors.Is(err, orders.ErrInvalidInput) {
			t.Fatalf("update %v: err = %v", amount, err)
		}
	}
}
