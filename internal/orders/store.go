package orders

import "context"

type CustomerRepository interface {
	InsertCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, p Page) ([]Customer, error)
	AllCustomers(ctx context.Context) ([]Customer, error)
	RenameCustomer(ctx context.Context, id int64, name string) (Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
}

type WarehouseRepository interface {
	// InsertWarehouse stores the warehouse row only; lines go through InsertLine.
	InsertWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
	// GetWarehouse returns the warehouse with its lines in insertion order.
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	// LockWarehouse takes a row lock held until the transaction ends.
	LockWarehouse(ctx context.Context, id int64) error
	ListWarehouses(ctx context.Context, p Page) ([]Warehouse, error)
	AllWarehouses(ctx context.Context) ([]Warehouse, error)
	RenameWarehouse(ctx context.Context, id int64, name string) (Warehouse, error)
	DeleteWarehouse(ctx context.Context, id int64) error
}

type ItemRepository interface {
	InsertItem(ctx context.Context, name string) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemByName(ctx context.Context, name string) (Item, error)
	ListItems(ctx context.Context, p Page) ([]Item, error)
	RenameItem(ctx context.Context, id int64, name string) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
	ItemInUse(ctx context.Context, id int64) (bool, error)
}

type LineRepository interface {
	ListLines(ctx context.Context, warehouseID int64) ([]InventoryLine, error)
	InsertLine(ctx context.Context, warehouseID int64, item Item, amount float64) (InventoryLine, error)
	UpdateLineAmount(ctx context.Context, lineID int64, amount float64) error
	DeleteLine(ctx context.Context, lineID int64) error
	DeleteLinesForWarehouse(ctx context.Context, warehouseID int64) error
}

type DistanceRepository interface {
	// LockMatrix serialises transactions that add or remove customers or
	// warehouses. The lock is held until the surrounding transaction ends.
	LockMatrix(ctx context.Context) error
	InsertDistances(ctx context.Context, entries []DistanceEntry) error
	GetDistance(ctx context.Context, id int64) (DistanceEntry, error)
	GetDistanceFor(ctx context.Context, customerID, warehouseID int64) (DistanceEntry, error)
	// RankedDistances orders by distance ascending, then warehouse id ascending.
	RankedDistances(ctx context.Context, customerID int64) ([]DistanceEntry, error)
	DeleteDistancesForCustomer(ctx context.Context, customerID int64) (int64, error)
	DeleteDistancesForWarehouse(ctx context.Context, warehouseID int64) (int64, error)
}

type OrderRepository interface {
	InsertOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, p Page) ([]Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// Repository is the full persistence contract, bound either to the pool or
// to a single transaction.
type Repository interface {
	CustomerRepository
	WarehouseRepository
	ItemRepository
	LineRepository
	DistanceRepository
	OrderRepository
}

// Store runs fn inside one transaction. fn's error rolls everything back.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}
