// Package catalog owns the lifecycle of customers, warehouses and items, and
// keeps the distance matrix in step with it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-planning/internal/distance"
	"github.com/ariefcatur/go-order-planning/internal/geo"
	"github.com/ariefcatur/go-order-planning/internal/inventory"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"go.uber.org/zap"
)

type Service struct {
	Store       orders.Store
	Locker      inventory.Locker
	Publisher   orders.Publisher
	Log         *zap.Logger
	ServiceName string
}

// ---- customers ----

// CreateCustomer stores the customer and one distance entry per existing
// warehouse in the same transaction. The matrix lock keeps a concurrent
// warehouse creation from missing the new customer.
func (s *Service) CreateCustomer(ctx context.Context, name string, loc geo.Point) (orders.Customer, error) {
	name, err := requireName("customer", name)
	if err != nil {
		return orders.Customer{}, err
	}
	if !loc.Valid() {
		return orders.Customer{}, fmt.Errorf("%w: customer location %+v out of range", orders.ErrInvalidInput, loc)
	}

	var (
		out    orders.Customer
		writes int
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockMatrix(ctx); err != nil {
			return err
		}
		c, err := r.InsertCustomer(ctx, orders.Customer{Name: name, Location: loc})
		if err != nil {
			return err
		}
		ws, err := r.AllWarehouses(ctx)
		if err != nil {
			return err
		}
		if writes, err = distance.New(r).OnCustomerCreated(ctx, c, ws); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return orders.Customer{}, err
	}

	s.Log.Info("customer created", zap.Int64("customer_id", out.ID), zap.Int("distance_writes", writes))
	s.publish(ctx, orders.TopicCustomerLifecycle, orders.EventCustomerCreated, out.ID,
		orders.CustomerLifecyclePayload{CustomerID: out.ID, Name: out.Name, DistanceWrites: writes})
	return out, nil
}

// DeleteCustomer drops the customer's distance entries, then the customer.
// Deleting an unknown id does nothing.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	var removed int64
	found := true
	err := s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockMatrix(ctx); err != nil {
			return err
		}
		if _, err := r.GetCustomer(ctx, id); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				found = false
				return nil
			}
			return err
		}
		var err error
		if removed, err = distance.New(r).OnCustomerDeleted(ctx, id); err != nil {
			return err
		}
		return r.DeleteCustomer(ctx, id)
	})
	if err != nil || !found {
		return err
	}

	s.Log.Info("customer deleted", zap.Int64("customer_id", id), zap.Int64("distance_deletes", removed))
	s.publish(ctx, orders.TopicCustomerLifecycle, orders.EventCustomerDeleted, id,
		orders.CustomerLifecyclePayload{CustomerID: id})
	return nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (orders.Customer, error) {
	return s.Store.GetCustomer(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, p orders.Page) ([]orders.Customer, error) {
	return s.Store.ListCustomers(ctx, p.Normalize())
}

func (s *Service) RenameCustomer(ctx context.Context, id int64, name string) (orders.Customer, error) {
	name, err := requireName("customer", name)
	if err != nil {
		return orders.Customer{}, err
	}
	return s.Store.RenameCustomer(ctx, id, name)
}

// RankedDistances lists the customer's warehouses nearest first.
func (s *Service) RankedDistances(ctx context.Context, customerID int64) ([]orders.DistanceEntry, error) {
	if _, err := s.Store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return distance.New(s.Store).RankedWarehousesFor(ctx, customerID)
}

// ---- warehouses ----

// CreateWarehouse stores the warehouse, one distance entry per existing
// customer and the initial lines in the given order, all or nothing.
func (s *Service) CreateWarehouse(ctx context.Context, name string, loc geo.Point, lines []orders.LineInput) (orders.Warehouse, error) {
	name, err := requireName("warehouse", name)
	if err != nil {
		return orders.Warehouse{}, err
	}
	if !loc.Valid() {
		return orders.Warehouse{}, fmt.Errorf("%w: warehouse location %+v out of range", orders.ErrInvalidInput, loc)
	}

	var (
		out    orders.Warehouse
		writes int
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockMatrix(ctx); err != nil {
			return err
		}
		w, err := r.InsertWarehouse(ctx, orders.Warehouse{Name: name, Location: loc})
		if err != nil {
			return err
		}
		cs, err := r.AllCustomers(ctx)
		if err != nil {
			return err
		}
		if writes, err = distance.New(r).OnWarehouseCreated(ctx, w, cs); err != nil {
			return err
		}
		if err := inventory.Seed(ctx, r, w.ID, lines); err != nil {
			return err
		}
		out, err = r.GetWarehouse(ctx, w.ID)
		return err
	})
	if err != nil {
		return orders.Warehouse{}, err
	}

	s.Log.Info("warehouse created",
		zap.Int64("warehouse_id", out.ID),
		zap.Int("lines", len(out.Items)),
		zap.Int("distance_writes", writes),
	)
	s.publish(ctx, orders.TopicWarehouseLifecycle, orders.EventWarehouseCreated, out.ID,
		orders.WarehouseLifecyclePayload{WarehouseID: out.ID, Name: out.Name, DistanceWrites: writes})
	return out, nil
}

// DeleteWarehouse drops the warehouse's distance entries and lines, then the
// warehouse, under the warehouse lock so no order commits against it midway.
// Deleting an unknown id does nothing.
func (s *Service) DeleteWarehouse(ctx context.Context, id int64) error {
	unlock, err := s.Locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock warehouse %d: %w", id, err)
	}
	defer unlock()

	var removed int64
	found := true
	err = s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockMatrix(ctx); err != nil {
			return err
		}
		if err := r.LockWarehouse(ctx, id); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				found = false
				return nil
			}
			return err
		}
		var err error
		if removed, err = distance.New(r).OnWarehouseDeleted(ctx, id); err != nil {
			return err
		}
		if err := r.DeleteLinesForWarehouse(ctx, id); err != nil {
			return err
		}
		return r.DeleteWarehouse(ctx, id)
	})
	if err != nil || !found {
		return err
	}

	s.Log.Info("warehouse deleted", zap.Int64("warehouse_id", id), zap.Int64("distance_deletes", removed))
	s.publish(ctx, orders.TopicWarehouseLifecycle, orders.EventWarehouseDeleted, id,
		orders.WarehouseLifecyclePayload{WarehouseID: id})
	return nil
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (orders.Warehouse, error) {
	return s.Store.GetWarehouse(ctx, id)
}

func (s *Service) ListWarehouses(ctx context.Context, p orders.Page) ([]orders.Warehouse, error) {
	return s.Store.ListWarehouses(ctx, p.Normalize())
}

func (s *Service) RenameWarehouse(ctx context.Context, id int64, name string) (orders.Warehouse, error) {
	name, err := requireName("warehouse", name)
	if err != nil {
		return orders.Warehouse{}, err
	}
	return s.Store.RenameWarehouse(ctx, id, name)
}

// ---- items ----

func (s *Service) CreateItem(ctx context.Context, name string) (orders.Item, error) {
	name, err := requireName("item", name)
	if err != nil {
		return orders.Item{}, err
	}
	return s.Store.InsertItem(ctx, name)
}

func (s *Service) GetItem(ctx context.Context, id int64) (orders.Item, error) {
	return s.Store.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, p orders.Page) ([]orders.Item, error) {
	return s.Store.ListItems(ctx, p.Normalize())
}

func (s *Service) RenameItem(ctx context.Context, id int64, name string) (orders.Item, error) {
	name, err := requireName("item", name)
	if err != nil {
		return orders.Item{}, err
	}
	return s.Store.RenameItem(ctx, id, name)
}

// DeleteItem refuses items still stocked by some warehouse. Deleting an
// unknown id does nothing.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if _, err := r.GetItem(ctx, id); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				return nil
			}
			return err
		}
		inUse, err := r.ItemInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: item %d is still held by a warehouse", orders.ErrConflict, id)
		}
		return r.DeleteItem(ctx, id)
	})
}

// ---- order ledger and distances ----

func (s *Service) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	return s.Store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, p orders.Page) ([]orders.Order, error) {
	return s.Store.ListOrders(ctx, p.Normalize())
}

// DeleteOrder removes a ledger entry. Stock is not returned. Deleting an
// unknown id does nothing.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	err := s.Store.DeleteOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) GetDistance(ctx context.Context, id int64) (orders.DistanceEntry, error) {
	return s.Store.GetDistance(ctx, id)
}

func requireName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", orders.ErrInvalidInput, kind)
	}
	return name, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, aggregateID int64, payload any) {
	ev, err := orders.NewEnvelope(eventType, s.ServiceName, aggregateID, payload)
	if err != nil {
		s.Log.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.Publisher.Publish(ctx, topic, orders.PartitionKey(aggregateID), ev); err != nil {
		s.Log.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}
