package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Idempotency maps client supplied external ids to the order they produced.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Lookup returns the order id recorded for externalID, if any.
func (i *Idempotency) Lookup(ctx context.Context, externalID string) (int64, bool, error) {
	s, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderPlace, externalID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key %q holds %q: %w", externalID, s, err)
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, externalID string, orderID int64) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, externalID), orderID, TTLIdempotency).Err()
}
