package redisx

import "time"

const (
	// Cart document: cart:{cart_id} -> JSON cart.Cart
	KeyCart = "cart:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "version": n}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
