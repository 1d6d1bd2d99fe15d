package redisx

import "time"

const (
	// Cart read cache: cart:{identity} -> cart JSON
	KeyCart = "cart:%s"

	// Dedup fast path for webhook events: dedup:webhook:{external_event_id}
	KeyWebhookDedup = "dedup:webhook:%s"

	// Content-cache tag sets: cache:tag:{tag} -> rendered entries keyed by tag
	KeyCacheTag = "cache:tag:%s"
)

var (
	TTLCart         = 15 * time.Minute
	TTLWebhookDedup = 48 * time.Hour
	TTLStatusCache  = 5 * time.Minute
)
