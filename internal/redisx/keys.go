package redisx

import "time"

const (
	// Idempotent order placement: idem:order:place:{external_id} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Warehouse lock lease: lock:warehouse:{warehouse_id} -> owner token
	KeyWarehouseLock = "lock:warehouse:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
