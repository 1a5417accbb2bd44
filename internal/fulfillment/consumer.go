package fulfillment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ariefcatur/go-order-planning/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Deduper interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// RequestHandler consumes OrderRequested events and runs them through the
// planner.
type RequestHandler struct {
	Planner *Planner
	Dedup   Deduper // optional
	Log     *zap.Logger
}

// HandleOrderRequested returns nil when the offset may be committed: the order
// was fulfilled or rejected, or the message can never be processed. Storage
// failures return the error so the message is delivered again.
func (h *RequestHandler) HandleOrderRequested(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.Log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderRequested {
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.MarkProcessed(ctx, env.EventID)
		if err != nil {
			h.Log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !first {
			h.Log.Debug("duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	var p orders.OrderRequestedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.Log.Error("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	_, err := h.Planner.Place(ctx, Request{
		ExternalID: p.ExternalID,
		CustomerID: p.CustomerID,
		ItemName:   p.ItemName,
		Amount:     p.Amount,
	})
	if err == nil || isFinal(err) {
		if err != nil {
			h.Log.Info("order request settled", zap.String("event_id", env.EventID), zap.Error(err))
		}
		return nil
	}

	if h.Dedup != nil {
		if ferr := h.Dedup.Forget(ctx, env.EventID); ferr != nil {
			h.Log.Warn("dedup forget", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
	}
	return err
}

// isFinal reports domain outcomes that a retry cannot change.
func isFinal(err error) bool {
	return errors.Is(err, orders.ErrUnfulfillable) ||
		errors.Is(err, orders.ErrNotFound) ||
		errors.Is(err, orders.ErrInvalidInput) ||
		errors.Is(err, orders.ErrAlreadyExists) ||
		errors.Is(err, orders.ErrConflict)
}
