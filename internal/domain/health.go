package domain

// ============================================================
// Health & Metrics responses of the local API
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of one dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ClientMetrics is returned by GET /v1/metrics/client.
type ClientMetrics struct {
	TotalRequests      int64   `json:"totalRequests"`
	ErrorRate          float64 `json:"errorRate"`
	CacheHitRate       float64 `json:"cacheHitRate"`
	SkippedLoads       int64   `json:"skippedLoads"`
	SessionTransitions int64   `json:"sessionTransitions"`
}
