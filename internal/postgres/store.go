package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-planning/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements orders.Store on PostgreSQL.
type Store struct {
	repo
	DB *pgxpool.Pool
}

var _ orders.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{repo: repo{q: db}, DB: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r orders.Repository) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type repo struct{ q querier }

// translate maps driver errors onto the domain taxonomy.
func translate(err error, what string, id any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, orders.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %v: %w", what, id, orders.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s %v is still referenced: %w", what, id, orders.ErrConflict)
		case "23514": // check_violation
			return fmt.Errorf("%s %v: %s: %w", what, id, pgErr.ConstraintName, orders.ErrInvalidInput)
		}
	}
	return err
}

func affected(ct pgconn.CommandTag, err error, what string, id any) error {
	if err != nil {
		return translate(err, what, id)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %v: %w", what, id, orders.ErrNotFound)
	}
	return nil
}

// ---- customers ----

const customerCols = `id, name, latitude, longitude, created_at`

func scanCustomer(row pgx.Row) (orders.Customer, error) {
	var c orders.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Location.Latitude, &c.Location.Longitude, &c.CreatedAt)
	return c, err
}

func (r *repo) InsertCustomer(ctx context.Context, c orders.Customer) (orders.Customer, error) {
	out, err := scanCustomer(r.q.QueryRow(ctx, `
		INSERT INTO customers (name, latitude, longitude)
		VALUES ($1, $2, $3)
		RETURNING `+customerCols, c.Name, c.Location.Latitude, c.Location.Longitude))
	return out, translate(err, "customer", fmt.Sprintf("%q", c.Name))
}

func (r *repo) GetCustomer(ctx context.Context, id int64) (orders.Customer, error) {
	c, err := scanCustomer(r.q.QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE id=$1`, id))
	return c, translate(err, "customer", id)
}

func (r *repo) ListCustomers(ctx context.Context, p orders.Page) ([]orders.Customer, error) {
	p = p.Normalize()
	return r.customers(ctx, `SELECT `+customerCols+` FROM customers ORDER BY id DESC LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
}

func (r *repo) AllCustomers(ctx context.Context) ([]orders.Customer, error) {
	return r.customers(ctx, `SELECT `+customerCols+` FROM customers ORDER BY id`)
}

func (r *repo) customers(ctx context.Context, sql string, args ...any) ([]orders.Customer, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Customer, error) {
		return scanCustomer(row)
	})
}

func (r *repo) RenameCustomer(ctx context.Context, id int64, name string) (orders.Customer, error) {
	c, err := scanCustomer(r.q.QueryRow(ctx, `
		UPDATE customers SET name=$2 WHERE id=$1
		RETURNING `+customerCols, id, name))
	return c, translate(err, "customer", id)
}

func (r *repo) DeleteCustomer(ctx context.Context, id int64) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	return affected(ct, err, "customer", id)
}

// ---- warehouses ----

const warehouseCols = `id, name, latitude, longitude, created_at`

func scanWarehouse(row pgx.Row) (orders.Warehouse, error) {
	var w orders.Warehouse
	err := row.Scan(&w.ID, &w.Name, &w.Location.Latitude, &w.Location.Longitude, &w.CreatedAt)
	return w, err
}

func (r *repo) InsertWarehouse(ctx context.Context, w orders.Warehouse) (orders.Warehouse, error) {
	out, err := scanWarehouse(r.q.QueryRow(ctx, `
		INSERT INTO warehouses (name, latitude, longitude)
		VALUES ($1, $2, $3)
		RETURNING `+warehouseCols, w.Name, w.Location.Latitude, w.Location.Longitude))
	if err != nil {
		return orders.Warehouse{}, translate(err, "warehouse", fmt.Sprintf("%q", w.Name))
	}
	out.Items = []orders.InventoryLine{}
	return out, nil
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (orders.Warehouse, error) {
	w, err := scanWarehouse(r.q.QueryRow(ctx, `SELECT `+warehouseCols+` FROM warehouses WHERE id=$1`, id))
	if err != nil {
		return orders.Warehouse{}, translate(err, "warehouse", id)
	}
	if w.Items, err = r.ListLines(ctx, id); err != nil {
		return orders.Warehouse{}, err
	}
	return w, nil
}

func (r *repo) LockWarehouse(ctx context.Context, id int64) error {
	var got int64
	err := r.q.QueryRow(ctx, `SELECT id FROM warehouses WHERE id=$1 FOR UPDATE`, id).Scan(&got)
	return translate(err, "warehouse", id)
}

func (r *repo) ListWarehouses(ctx context.Context, p orders.Page) ([]orders.Warehouse, error) {
	p = p.Normalize()
	ws, err := r.warehouses(ctx, `SELECT `+warehouseCols+` FROM warehouses ORDER BY id DESC LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	if err != nil || len(ws) == 0 {
		return ws, err
	}

	ids := make([]int64, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	lines, err := r.lines(ctx, lineSelect+` WHERE l.warehouse_id = ANY($1) ORDER BY l.id`, ids)
	if err != nil {
		return nil, err
	}
	byWarehouse := make(map[int64][]orders.InventoryLine, len(ws))
	for _, ln := range lines {
		byWarehouse[ln.WarehouseID] = append(byWarehouse[ln.WarehouseID], ln)
	}
	for i := range ws {
		ws[i].Items = byWarehouse[ws[i].ID]
		if ws[i].Items == nil {
			ws[i].Items = []orders.InventoryLine{}
		}
	}
	return ws, nil
}

func (r *repo) AllWarehouses(ctx context.Context) ([]orders.Warehouse, error) {
	return r.warehouses(ctx, `SELECT `+warehouseCols+` FROM warehouses ORDER BY id`)
}

func (r *repo) warehouses(ctx context.Context, sql string, args ...any) ([]orders.Warehouse, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Warehouse, error) {
		return scanWarehouse(row)
	})
}

func (r *repo) RenameWarehouse(ctx context.Context, id int64, name string) (orders.Warehouse, error) {
	if _, err := scanWarehouse(r.q.QueryRow(ctx, `
		UPDATE warehouses SET name=$2 WHERE id=$1
		RETURNING `+warehouseCols, id, name)); err != nil {
		return orders.Warehouse{}, translate(err, "warehouse", id)
	}
	return r.GetWarehouse(ctx, id)
}

func (r *repo) DeleteWarehouse(ctx context.Context, id int64) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM warehouses WHERE id=$1`, id)
	return affected(ct, err, "warehouse", id)
}

// ---- items ----

func scanItem(row pgx.Row) (orders.Item, error) {
	var it orders.Item
	err := row.Scan(&it.ID, &it.Name)
	return it, err
}

func (r *repo) InsertItem(ctx context.Context, name string) (orders.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `INSERT INTO items (name) VALUES ($1) RETURNING id, name`, name))
	return it, translate(err, "item", fmt.Sprintf("%q", name))
}

func (r *repo) GetItem(ctx context.Context, id int64) (orders.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `SELECT id, name FROM items WHERE id=$1`, id))
	return it, translate(err, "item", id)
}

func (r *repo) GetItemByName(ctx context.Context, name string) (orders.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `SELECT id, name FROM items WHERE name=$1`, name))
	return it, translate(err, "item", fmt.Sprintf("%q", name))
}

func (r *repo) ListItems(ctx context.Context, p orders.Page) ([]orders.Item, error) {
	p = p.Normalize()
	rows, err := r.q.Query(ctx, `SELECT id, name FROM items ORDER BY id DESC LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Item, error) {
		return scanItem(row)
	})
}

func (r *repo) RenameItem(ctx context.Context, id int64, name string) (orders.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `UPDATE items SET name=$2 WHERE id=$1 RETURNING id, name`, id, name))
	return it, translate(err, "item", id)
}

func (r *repo) DeleteItem(ctx context.Context, id int64) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM items WHERE id=$1`, id)
	return affected(ct, err, "item", id)
}

func (r *repo) ItemInUse(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_lines WHERE item_id=$1)`, id).Scan(&used)
	return used, err
}

// ---- inventory lines ----

const lineSelect = `
	SELECT l.id, l.warehouse_id, i.id, i.name, l.amount
	FROM inventory_lines l JOIN items i ON i.id = l.item_id`

func (r *repo) lines(ctx context.Context, sql string, args ...any) ([]orders.InventoryLine, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.InventoryLine, error) {
		var ln orders.InventoryLine
		err := row.Scan(&ln.ID, &ln.WarehouseID, &ln.Item.ID, &ln.Item.Name, &ln.Amount)
		return ln, err
	})
}

func (r *repo) ListLines(ctx context.Context, warehouseID int64) ([]orders.InventoryLine, error) {
	return r.lines(ctx, lineSelect+` WHERE l.warehouse_id=$1 ORDER BY l.id`, warehouseID)
}

func (r *repo) InsertLine(ctx context.Context, warehouseID int64, item orders.Item, amount float64) (orders.InventoryLine, error) {
	ln := orders.InventoryLine{WarehouseID: warehouseID, Item: item, Amount: amount}
	err := r.q.QueryRow(ctx, `
		INSERT INTO inventory_lines (warehouse_id, item_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id`, warehouseID, item.ID, amount).Scan(&ln.ID)
	if err != nil {
		return orders.InventoryLine{}, translate(err, "inventory line of warehouse", warehouseID)
	}
	return ln, nil
}

func (r *repo) UpdateLineAmount(ctx context.Context, lineID int64, amount float64) error {
	ct, err := r.q.Exec(ctx, `UPDATE inventory_lines SET amount=$2 WHERE id=$1`, lineID, amount)
	return affected(ct, err, "inventory line", lineID)
}

func (r *repo) DeleteLine(ctx context.Context, lineID int64) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM inventory_lines WHERE id=$1`, lineID)
	return affected(ct, err, "inventory line", lineID)
}

func (r *repo) DeleteLinesForWarehouse(ctx context.Context, warehouseID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM inventory_lines WHERE warehouse_id=$1`, warehouseID)
	return err
}

// ---- distances ----

const distanceCols = `id, customer_id, warehouse_id, distance_value`

func scanDistance(row pgx.Row) (orders.DistanceEntry, error) {
	var d orders.DistanceEntry
	err := row.Scan(&d.ID, &d.CustomerID, &d.WarehouseID, &d.DistanceValue)
	return d, err
}

func (r *repo) InsertDistances(ctx context.Context, entries []orders.DistanceEntry) error {
	b := &pgx.Batch{}
	for _, e := range entries {
		b.Queue(`INSERT INTO distances (customer_id, warehouse_id, distance_value) VALUES ($1, $2, $3)`,
			e.CustomerID, e.WarehouseID, e.DistanceValue)
	}
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return translate(err, "distance batch of", len(entries))
	}
	return nil
}

func (r *repo) GetDistance(ctx context.Context, id int64) (orders.DistanceEntry, error) {
	d, err := scanDistance(r.q.QueryRow(ctx, `SELECT `+distanceCols+` FROM distances WHERE id=$1`, id))
	return d, translate(err, "distance", id)
}

func (r *repo) GetDistanceFor(ctx context.Context, customerID, warehouseID int64) (orders.DistanceEntry, error) {
	d, err := scanDistance(r.q.QueryRow(ctx, `
		SELECT `+distanceCols+` FROM distances
		WHERE customer_id=$1 AND warehouse_id=$2`, customerID, warehouseID))
	return d, translate(err, "distance", fmt.Sprintf("(%d,%d)", customerID, warehouseID))
}

func (r *repo) RankedDistances(ctx context.Context, customerID int64) ([]orders.DistanceEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+distanceCols+` FROM distances
		WHERE customer_id=$1
		ORDER BY distance_value, warehouse_id`, customerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.DistanceEntry, error) {
		return scanDistance(row)
	})
}

func (r *repo) DeleteDistancesForCustomer(ctx context.Context, customerID int64) (int64, error) {
	ct, err := r.q.Exec(ctx, `DELETE FROM distances WHERE customer_id=$1`, customerID)
	if err != nil {
		return 0, translate(err, "distances of customer", customerID)
	}
	return ct.RowsAffected(), nil
}

func (r *repo) DeleteDistancesForWarehouse(ctx context.Context, warehouseID int64) (int64, error) {
	ct, err := r.q.Exec(ctx, `DELETE FROM distances WHERE warehouse_id=$1`, warehouseID)
	if err != nil {
		return 0, translate(err, "distances of warehouse", warehouseID)
	}
	return ct.RowsAffected(), nil
}

// matrixLockKey identifies the advisory lock guarding the customer and
// warehouse sets.
const matrixLockKey int64 = 0x6d61747278

// LockMatrix takes a transaction-scoped advisory lock. Outside WithinTx it is
// released as soon as the statement returns.
func (r *repo) LockMatrix(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, matrixLockKey); err != nil {
		return fmt.Errorf("lock distance matrix: %w", err)
	}
	return nil
}

// ---- orders ----

const orderCols = `id, COALESCE(external_id, ''), amount, item_id, item_name, customer_id, warehouse_id, distance, created_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.Amount, &o.Item.ID, &o.Item.Name,
		&o.CustomerID, &o.WarehouseID, &o.Distance, &o.CreatedAt)
	return o, err
}

func (r *repo) InsertOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	out, err := scanOrder(r.q.QueryRow(ctx, `
		INSERT INTO orders (external_id, amount, item_id, item_name, customer_id, warehouse_id, distance)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7)
		RETURNING `+orderCols,
		o.ExternalID, o.Amount, o.Item.ID, o.Item.Name, o.CustomerID, o.WarehouseID, o.Distance))
	return out, translate(err, "order", fmt.Sprintf("%q", o.ExternalID))
}

func (r *repo) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	return o, translate(err, "order", id)
}

func (r *repo) ListOrders(ctx context.Context, p orders.Page) ([]orders.Order, error) {
	p = p.Normalize()
	rows, err := r.q.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY id DESC LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Order, error) {
		return scanOrder(row)
	})
}

func (r *repo) DeleteOrder(ctx context.Context, id int64) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	return affected(ct, err, "order", id)
}
