// Package distance maintains the customer/warehouse distance matrix that the
// fulfillment planner ranks warehouses with.
package distance

import (
	"cmp"
	"context"
	"slices"

	"github.com/ariefcatur/go-order-planning/internal/geo"
	"github.com/ariefcatur/go-order-planning/internal/orders"
)

// Cache is bound to a repository, usually the one of the transaction that
// creates or deletes the owning customer or warehouse.
type Cache struct {
	repo orders.DistanceRepository
}

func New(repo orders.DistanceRepository) *Cache {
	return &Cache{repo: repo}
}

// OnCustomerCreated stores one entry per existing warehouse.
func (c *Cache) OnCustomerCreated(ctx context.Context, customer orders.Customer, warehouses []orders.Warehouse) (int, error) {
	entries := make([]orders.DistanceEntry, 0, len(warehouses))
	for _, w := range warehouses {
		entries = append(entries, entry(customer, w))
	}
	return len(entries), c.insert(ctx, entries)
}

// OnWarehouseCreated stores one entry per existing customer.
func (c *Cache) OnWarehouseCreated(ctx context.Context, warehouse orders.Warehouse, customers []orders.Customer) (int, error) {
	entries := make([]orders.DistanceEntry, 0, len(customers))
	for _, cu := range customers {
		entries = append(entries, entry(cu, warehouse))
	}
	return len(entries), c.insert(ctx, entries)
}

// OnCustomerDeleted drops every entry of the customer. Nothing to drop is fine.
func (c *Cache) OnCustomerDeleted(ctx context.Context, customerID int64) (int64, error) {
	return c.repo.DeleteDistancesForCustomer(ctx, customerID)
}

// OnWarehouseDeleted drops every entry of the warehouse. Nothing to drop is fine.
func (c *Cache) OnWarehouseDeleted(ctx context.Context, warehouseID int64) (int64, error) {
	return c.repo.DeleteDistancesForWarehouse(ctx, warehouseID)
}

// RankedWarehousesFor returns the customer's entries nearest first. Equal
// distances keep warehouse creation order (ascending warehouse id).
func (c *Cache) RankedWarehousesFor(ctx context.Context, customerID int64) ([]orders.DistanceEntry, error) {
	entries, err := c.repo.RankedDistances(ctx, customerID)
	if err != nil {
		return nil, err
	}
	Rank(entries)
	return entries, nil
}

// Rank sorts entries in place by distance, then warehouse id.
func Rank(entries []orders.DistanceEntry) {
	slices.SortStableFunc(entries, func(a, b orders.DistanceEntry) int {
		if c := cmp.Compare(a.DistanceValue, b.DistanceValue); c != 0 {
			return c
		}
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})
}

func (c *Cache) insert(ctx context.Context, entries []orders.DistanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.repo.InsertDistances(ctx, entries)
}

func entry(c orders.Customer, w orders.Warehouse) orders.DistanceEntry {
	return orders.DistanceEntry{
		CustomerID:    c.ID,
		WarehouseID:   w.ID,
		DistanceValue: geo.Between(c.Location, w.Location),
	}
}
