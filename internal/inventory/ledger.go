package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-planning/internal/orders"
)

// Ledger is the line collection of one warehouse, loaded inside the
// transaction that mutates it. Callers must hold the warehouse lock.
type Ledger struct {
	repo        orders.LineRepository
	warehouseID int64
	lines       []orders.InventoryLine
}

func Load(ctx context.Context, repo orders.LineRepository, warehouseID int64) (*Ledger, error) {
	lines, err := repo.ListLines(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return &Ledger{repo: repo, warehouseID: warehouseID, lines: lines}, nil
}

func (l *Ledger) Lines() []orders.InventoryLine {
	out := make([]orders.InventoryLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// FindFirstSufficient scans lines in insertion order and returns the first
// line of item holding at least amount. Lines are never aggregated.
func (l *Ledger) FindFirstSufficient(itemID int64, amount float64) (orders.InventoryLine, bool) {
	i := firstSufficient(l.lines, itemID, amount)
	if i < 0 {
		return orders.InventoryLine{}, false
	}
	return l.lines[i], true
}

// Increase adds amount to the item's line, appending a new line when the
// warehouse holds none.
func (l *Ledger) Increase(ctx context.Context, item orders.Item, amount float64) (orders.InventoryLine, error) {
	if !orders.ValidAmount(amount) {
		return orders.InventoryLine{}, fmt.Errorf("%w: amount must be positive, got %v", orders.ErrInvalidInput, amount)
	}
	if i := firstLine(l.lines, item.ID); i >= 0 {
		next := l.lines[i].Amount + amount
		if err := l.repo.UpdateLineAmount(ctx, l.lines[i].ID, next); err != nil {
			return orders.InventoryLine{}, err
		}
		l.lines[i].Amount = next
		return l.lines[i], nil
	}
	line, err := l.repo.InsertLine(ctx, l.warehouseID, item, amount)
	if err != nil {
		return orders.InventoryLine{}, err
	}
	l.lines = append(l.lines, line)
	return line, nil
}

// Decrease takes amount from the item's first line. The line is removed when
// it reaches exactly zero.
func (l *Ledger) Decrease(ctx context.Context, item orders.Item, amount float64) (float64, error) {
	if !orders.ValidAmount(amount) {
		return 0, fmt.Errorf("%w: amount must be positive, got %v", orders.ErrInvalidInput, amount)
	}
	i := firstLine(l.lines, item.ID)
	if i < 0 {
		return 0, fmt.Errorf("%w: warehouse %d holds no item %q", orders.ErrConflict, l.warehouseID, item.Name)
	}
	return l.decreaseAt(ctx, i, amount)
}

// DecreaseLine takes amount from a specific line, as chosen by FindFirstSufficient.
func (l *Ledger) DecreaseLine(ctx context.Context, lineID int64, amount float64) (float64, error) {
	for i := range l.lines {
		if l.lines[i].ID == lineID {
			return l.decreaseAt(ctx, i, amount)
		}
	}
	return 0, fmt.Errorf("%w: line %d is not in warehouse %d", orders.ErrConflict, lineID, l.warehouseID)
}

func (l *Ledger) decreaseAt(ctx context.Context, i int, amount float64) (float64, error) {
	line := l.lines[i]
	if line.Amount < amount {
		return 0, fmt.Errorf("%w: cannot remove %v of %q from warehouse %d, current amount is %v",
			orders.ErrConflict, amount, line.Item.Name, l.warehouseID, line.Amount)
	}
	rest := line.Amount - amount
	if rest == 0 {
		if err := l.repo.DeleteLine(ctx, line.ID); err != nil {
			return 0, err
		}
		l.lines = append(l.lines[:i], l.lines[i+1:]...)
		return 0, nil
	}
	if err := l.repo.UpdateLineAmount(ctx, line.ID, rest); err != nil {
		return 0, err
	}
	l.lines[i].Amount = rest
	return rest, nil
}

func firstLine(lines []orders.InventoryLine, itemID int64) int {
	for i, ln := range lines {
		if ln.Item.ID == itemID {
			return i
		}
	}
	return -1
}

func firstSufficient(lines []orders.InventoryLine, itemID int64, amount float64) int {
	for i, ln := range lines {
		if ln.Item.ID == itemID && ln.Amount >= amount {
			return i
		}
	}
	return -1
}
