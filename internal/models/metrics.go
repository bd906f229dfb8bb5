package models

import "time"

// SystemMetrics is a lightweight view over the Prometheus collectors.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BackendCalls             uint64    `json:"backend_calls"`
	BackendFailures          uint64    `json:"backend_failures"`
	AverageBackendDurationMs float64   `json:"average_backend_duration_ms"`
	OperationsSucceeded      uint64    `json:"operations_succeeded"`
	OperationsFailed         uint64    `json:"operations_failed"`
	SnapshotReloads          uint64    `json:"snapshot_reloads"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
