package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-planning/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Operation string

const (
	OpIncrease Operation = "increase"
	OpDecrease Operation = "decrease"
)

// ParseOperation accepts increase/decrease and the legacy PUT/REMOVE names.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increase", "put":
		return OpIncrease, nil
	case "decrease", "remove":
		return OpDecrease, nil
	}
	return "", fmt.Errorf("%w: operation must be increase or decrease, got %q", orders.ErrInvalidInput, s)
}

type AdjustInput struct {
	WarehouseID int64
	ItemName    string
	Amount      float64
	Op          Operation
}

type Service struct {
	Store       orders.Store
	Locker      Locker
	Publisher   orders.Publisher
	Log         *zap.Logger
	ServiceName string
}

// Adjust applies an administrative increase or decrease to one warehouse
// under the warehouse lock and returns the warehouse as committed.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (orders.Warehouse, error) {
	ctx, span := otel.Tracer("inventory").Start(ctx, "inventory.adjust")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("warehouse.id", in.WarehouseID),
		attribute.String("item.name", in.ItemName),
		attribute.Float64("amount", in.Amount),
		attribute.String("operation", string(in.Op)),
	)

	if !orders.ValidAmount(in.Amount) {
		return orders.Warehouse{}, fmt.Errorf("%w: amount must be positive, got %v", orders.ErrInvalidInput, in.Amount)
	}
	if strings.TrimSpace(in.ItemName) == "" {
		return orders.Warehouse{}, fmt.Errorf("%w: item name is required", orders.ErrInvalidInput)
	}
	if in.Op != OpIncrease && in.Op != OpDecrease {
		return orders.Warehouse{}, fmt.Errorf("%w: unknown operation %q", orders.ErrInvalidInput, in.Op)
	}

	unlock, err := s.Locker.Lock(ctx, in.WarehouseID)
	if err != nil {
		return orders.Warehouse{}, fmt.Errorf("lock warehouse %d: %w", in.WarehouseID, err)
	}
	defer unlock()

	var (
		out   orders.Warehouse
		after float64
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockWarehouse(ctx, in.WarehouseID); err != nil {
			return err
		}
		item, err := resolveItem(ctx, r, in.ItemName, in.Op == OpIncrease)
		if err != nil {
			return err
		}
		ledger, err := Load(ctx, r, in.WarehouseID)
		if err != nil {
			return err
		}
		switch in.Op {
		case OpIncrease:
			line, err := ledger.Increase(ctx, item, in.Amount)
			if err != nil {
				return err
			}
			after = line.Amount
		case OpDecrease:
			if after, err = ledger.Decrease(ctx, item, in.Amount); err != nil {
				return err
			}
		}
		out, err = r.GetWarehouse(ctx, in.WarehouseID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return orders.Warehouse{}, err
	}

	s.Log.Info("stock adjusted",
		zap.Int64("warehouse_id", in.WarehouseID),
		zap.String("item", in.ItemName),
		zap.String("op", string(in.Op)),
		zap.Float64("amount", in.Amount),
		zap.Float64("amount_after", after),
	)
	s.publish(ctx, orders.StockAdjustedPayload{
		WarehouseID: in.WarehouseID,
		ItemName:    in.ItemName,
		Operation:   string(in.Op),
		Amount:      in.Amount,
		AmountAfter: after,
	})
	return out, nil
}

// Seed writes the initial lines of a freshly inserted warehouse in the given
// order. It runs in the creating transaction, so no lock is needed: nobody
// else sees the row yet. Repeated items stay separate lines.
func Seed(ctx context.Context, r orders.Repository, warehouseID int64, lines []orders.LineInput) error {
	for _, in := range lines {
		if strings.TrimSpace(in.ItemName) == "" {
			return fmt.Errorf("%w: initial line without item name", orders.ErrInvalidInput)
		}
		if !orders.ValidAmount(in.Amount) {
			return fmt.Errorf("%w: initial amount of %q must be positive, got %v", orders.ErrInvalidInput, in.ItemName, in.Amount)
		}
		item, err := resolveItem(ctx, r, in.ItemName, true)
		if err != nil {
			return err
		}
		if _, err := r.InsertLine(ctx, warehouseID, item, in.Amount); err != nil {
			return err
		}
	}
	return nil
}

// resolveItem finds the item by name, registering it when create is set.
func resolveItem(ctx context.Context, r orders.ItemRepository, name string, create bool) (orders.Item, error) {
	item, err := r.GetItemByName(ctx, name)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, orders.ErrNotFound) || !create {
		return orders.Item{}, err
	}
	return r.InsertItem(ctx, name)
}

func (s *Service) publish(ctx context.Context, p orders.StockAdjustedPayload) {
	ev, err := orders.NewEnvelope(orders.EventStockAdjusted, s.ServiceName, p.WarehouseID, p)
	if err != nil {
		s.Log.Error("marshal stock event", zap.Error(err))
		return
	}
	if err := s.Publisher.Publish(ctx, orders.TopicStockAdjusted, orders.PartitionKey(p.WarehouseID), ev); err != nil {
		s.Log.Warn("publish stock event", zap.Error(err), zap.Int64("warehouse_id", p.WarehouseID))
	}
}
