package models

import "time"

// SystemMetrics is a JSON snapshot of the service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	StoreOperations          uint64    `json:"store_operations"`
	AverageStoreDurationMs   float64   `json:"average_store_duration_ms"`
	OpenSubscriptions        int64     `json:"open_subscriptions"`
	LiveSessions             int64     `json:"live_sessions"`
	SubscriptionErrors       uint64    `json:"subscription_errors"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
