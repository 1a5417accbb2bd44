// Package fulfillment routes an order to the nearest warehouse that can cover
// it from a single inventory line.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-planning/internal/distance"
	"github.com/ariefcatur/go-order-planning/internal/inventory"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Idempotency remembers which order an external id produced.
type Idempotency interface {
	Lookup(ctx context.Context, externalID string) (int64, bool, error)
	Remember(ctx context.Context, externalID string, orderID int64) error
}

type Request struct {
	ExternalID string
	CustomerID int64
	ItemName   string
	Amount     float64
}

type Planner struct {
	Store       orders.Store
	Locker      inventory.Locker
	Publisher   orders.Publisher
	Idempotency Idempotency // optional
	Log         *zap.Logger
	ServiceName string
}

var errNoHit = errors.New("no sufficient line")

// request tracks one order through the fulfillment states.
type request struct {
	Request
	status orders.Status
	log    *zap.Logger
}

func (r *request) to(next orders.Status) {
	if !orders.CanTransition(r.status, next) {
		panic(fmt.Sprintf("fulfillment: illegal transition %s -> %s", r.status, next))
	}
	r.log.Debug("order state", zap.String("from", string(r.status)), zap.String("to", string(next)))
	r.status = next
}

// Place validates the request, walks the customer's ranked warehouses nearest
// first and commits against the first warehouse whose first sufficient line
// covers the whole amount. Nothing is written when no warehouse qualifies.
func (p *Planner) Place(ctx context.Context, in Request) (orders.Order, error) {
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "fulfillment.place_order")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("customer.id", in.CustomerID),
		attribute.String("item.name", in.ItemName),
		attribute.Float64("amount", in.Amount),
	)

	req := &request{Request: in, status: orders.StatusValidating, log: p.Log.With(
		zap.Int64("customer_id", in.CustomerID),
		zap.String("item", in.ItemName),
		zap.Float64("amount", in.Amount),
	)}

	order, scanned, err := p.place(ctx, req)
	span.SetAttributes(attribute.Int("candidates.scanned", scanned))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, orders.ErrUnfulfillable) {
			p.publishRejected(ctx, in, err)
		}
		return orders.Order{}, err
	}
	span.SetAttributes(
		attribute.Int64("warehouse.id", order.WarehouseID),
		attribute.Float64("distance", order.Distance),
	)
	span.SetStatus(codes.Ok, "fulfilled")
	return order, nil
}

func (p *Planner) place(ctx context.Context, req *request) (orders.Order, int, error) {
	if req.ExternalID != "" && p.Idempotency != nil {
		if o, ok := p.replay(ctx, req.ExternalID); ok {
			req.log.Info("order replayed", zap.String("external_id", req.ExternalID), zap.Int64("order_id", o.ID))
			return o, 0, nil
		}
	}

	item, err := p.validate(ctx, req)
	if err != nil {
		req.to(orders.StatusRejected)
		return orders.Order{}, 0, err
	}
	req.to(orders.StatusSearching)

	ranked, err := distance.New(p.Store).RankedWarehousesFor(ctx, req.CustomerID)
	if err != nil {
		return orders.Order{}, 0, err
	}

	for i, cand := range ranked {
		order, err := p.tryCommit(ctx, req, item, cand)
		switch {
		case err == nil:
			req.to(orders.StatusFulfilled)
			req.log.Info("order fulfilled",
				zap.Int64("order_id", order.ID),
				zap.Int64("warehouse_id", order.WarehouseID),
				zap.Float64("distance", order.Distance),
			)
			p.remember(ctx, req.ExternalID, order.ID)
			p.publishFulfilled(ctx, order)
			return order, i + 1, nil
		case errors.Is(err, errNoHit):
			continue
		case errors.Is(err, orders.ErrNotFound):
			// deleted between ranking and locking
			req.log.Debug("candidate gone", zap.Int64("warehouse_id", cand.WarehouseID))
			continue
		default:
			return orders.Order{}, i + 1, err
		}
	}

	req.to(orders.StatusRejected)
	req.log.Info("order rejected", zap.Int("candidates", len(ranked)))
	return orders.Order{}, len(ranked), fmt.Errorf("%w: %v of %q for customer %d",
		orders.ErrUnfulfillable, req.Amount, req.ItemName, req.CustomerID)
}

// validate checks the item, then the customer, then the amount. A blank item
// name is malformed rather than unknown.
func (p *Planner) validate(ctx context.Context, req *request) (orders.Item, error) {
	if strings.TrimSpace(req.ItemName) == "" {
		return orders.Item{}, fmt.Errorf("%w: item name is required", orders.ErrInvalidInput)
	}
	item, err := p.Store.GetItemByName(ctx, req.ItemName)
	if err != nil {
		return orders.Item{}, err
	}
	if _, err := p.Store.GetCustomer(ctx, req.CustomerID); err != nil {
		return orders.Item{}, err
	}
	if !orders.ValidAmount(req.Amount) {
		return orders.Item{}, fmt.Errorf("%w: amount must be positive, got %v", orders.ErrInvalidInput, req.Amount)
	}
	return item, nil
}

// tryCommit re-reads the candidate's lines under its lock and, on a hit,
// decreases the line and stores the order in one transaction.
func (p *Planner) tryCommit(ctx context.Context, req *request, item orders.Item, cand orders.DistanceEntry) (orders.Order, error) {
	unlock, err := p.Locker.Lock(ctx, cand.WarehouseID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("lock warehouse %d: %w", cand.WarehouseID, err)
	}
	defer unlock()

	var out orders.Order
	err = p.Store.WithinTx(ctx, func(ctx context.Context, r orders.Repository) error {
		if err := r.LockWarehouse(ctx, cand.WarehouseID); err != nil {
			return err
		}
		ledger, err := inventory.Load(ctx, r, cand.WarehouseID)
		if err != nil {
			return err
		}
		line, ok := ledger.FindFirstSufficient(item.ID, req.Amount)
		if !ok {
			return errNoHit
		}
		req.to(orders.StatusCommitting)
		if _, err := ledger.DecreaseLine(ctx, line.ID, req.Amount); err != nil {
			return err
		}
		out, err = r.InsertOrder(ctx, orders.Order{
			ExternalID:  req.ExternalID,
			Amount:      req.Amount,
			Item:        item,
			CustomerID:  req.CustomerID,
			WarehouseID: cand.WarehouseID,
			Distance:    cand.DistanceValue,
		})
		return err
	})
	if err != nil && req.status == orders.StatusCommitting {
		req.to(orders.StatusSearching)
	}
	return out, err
}

func (p *Planner) replay(ctx context.Context, externalID string) (orders.Order, bool) {
	id, ok, err := p.Idempotency.Lookup(ctx, externalID)
	if err != nil {
		p.Log.Warn("idempotency lookup", zap.String("external_id", externalID), zap.Error(err))
		return orders.Order{}, false
	}
	if !ok {
		return orders.Order{}, false
	}
	o, err := p.Store.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, false
	}
	return o, true
}

func (p *Planner) remember(ctx context.Context, externalID string, orderID int64) {
	if externalID == "" || p.Idempotency == nil {
		return
	}
	if err := p.Idempotency.Remember(ctx, externalID, orderID); err != nil {
		p.Log.Warn("idempotency remember", zap.String("external_id", externalID), zap.Error(err))
	}
}

func (p *Planner) publishFulfilled(ctx context.Context, o orders.Order) {
	p.publish(ctx, orders.TopicOrderFulfilled, orders.EventOrderFulfilled, o.ID, orders.OrderFulfilledPayload{
		OrderID:     o.ID,
		ExternalID:  o.ExternalID,
		CustomerID:  o.CustomerID,
		WarehouseID: o.WarehouseID,
		ItemName:    o.Item.Name,
		Amount:      o.Amount,
		Distance:    o.Distance,
	})
}

func (p *Planner) publishRejected(ctx context.Context, in Request, reason error) {
	p.publish(ctx, orders.TopicOrderRejected, orders.EventOrderRejected, in.CustomerID, orders.OrderRejectedPayload{
		ExternalID: in.ExternalID,
		CustomerID: in.CustomerID,
		ItemName:   in.ItemName,
		Amount:     in.Amount,
		Reason:     reason.Error(),
	})
}

func (p *Planner) publish(ctx context.Context, topic, eventType string, aggregateID int64, payload any) {
	ev, err := orders.NewEnvelope(eventType, p.ServiceName, aggregateID, payload)
	if err != nil {
		p.Log.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := p.Publisher.Publish(ctx, topic, orders.PartitionKey(aggregateID), ev); err != nil {
		p.Log.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}
