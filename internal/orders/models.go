package orders

import (
	"math"
	"time"

	"github.com/ariefcatur/go-order-planning/internal/geo"
)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  geo.Point `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type Item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// InventoryLine is one (item, amount) record owned by a warehouse. Lines are
// kept in insertion order; ID grows with insertion.
type InventoryLine struct {
	ID          int64   `json:"id"`
	WarehouseID int64   `json:"-"`
	Item        Item    `json:"item"`
	Amount      float64 `json:"amount"`
}

type Warehouse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Location  geo.Point       `json:"location"`
	Items     []InventoryLine `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// DistanceEntry is the cached distance between one customer and one
// warehouse. Entries are written once and only ever deleted.
type DistanceEntry struct {
	ID            int64   `json:"id"`
	CustomerID    int64   `json:"customer_id"`
	WarehouseID   int64   `json:"warehouse_id"`
	DistanceValue float64 `json:"distance_value"`
}

// Order is a fulfilled order. Rejected requests never become an Order.
type Order struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Amount      float64   `json:"amount"`
	Item        Item      `json:"item"`
	CustomerID  int64     `json:"customer_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Distance    float64   `json:"distance"`
	CreatedAt   time.Time `json:"created_at"`
}

// LineInput is an initial or adjusting stock amount addressed by item name.
type LineInput struct {
	ItemName string  `json:"item_name"`
	Amount   float64 `json:"amount"`
}

// ValidAmount reports whether a is a usable stock or order quantity: finite
// and strictly positive. NaN fails every comparison, so it is rejected too.
func ValidAmount(a float64) bool {
	return a > 0 && !math.IsInf(a, 1)
}

type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

// Normalize clamps a page request to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
