package orders

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventCustomerCreated  = "CustomerCreated"
	EventCustomerDeleted  = "CustomerDeleted"
	EventWarehouseCreated = "WarehouseCreated"
	EventWarehouseDeleted = "WarehouseDeleted"
	EventStockAdjusted    = "StockAdjusted"
	EventOrderRequested   = "OrderRequested"
	EventOrderFulfilled   = "OrderFulfilled"
	EventOrderRejected    = "OrderRejected"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload into a v1 envelope correlated to the aggregate id.
func NewEnvelope(eventType, producer string, aggregateID int64, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(aggregateID, 10),
		Payload:       b,
	}, nil
}

// Publisher emits domain events after the owning transaction committed.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, ev Envelope) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte, Envelope) error { return nil }

// ---- payloads ----

type CustomerLifecyclePayload struct {
	CustomerID     int64  `json:"customer_id"`
	Name           string `json:"name,omitempty"`
	DistanceWrites int    `json:"distance_writes"`
}

type WarehouseLifecyclePayload struct {
	WarehouseID    int64  `json:"warehouse_id"`
	Name           string `json:"name,omitempty"`
	DistanceWrites int    `json:"distance_writes"`
}

type StockAdjustedPayload struct {
	WarehouseID int64   `json:"warehouse_id"`
	ItemName    string  `json:"item_name"`
	Operation   string  `json:"operation"`
	Amount      float64 `json:"amount"`
	AmountAfter float64 `json:"amount_after"`
}

type OrderRequestedPayload struct {
	ExternalID string  `json:"external_id,omitempty"`
	CustomerID int64   `json:"customer_id"`
	ItemName   string  `json:"item_name"`
	Amount     float64 `json:"amount"`
}

type OrderFulfilledPayload struct {
	OrderID     int64   `json:"order_id"`
	ExternalID  string  `json:"external_id,omitempty"`
	CustomerID  int64   `json:"customer_id"`
	WarehouseID int64   `json:"warehouse_id"`
	ItemName    string  `json:"item_name"`
	Amount      float64 `json:"amount"`
	Distance    float64 `json:"distance"`
}

type OrderRejectedPayload struct {
	ExternalID string  `json:"external_id,omitempty"`
	CustomerID int64   `json:"customer_id"`
	ItemName   string  `json:"item_name"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
}
