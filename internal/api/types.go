package api

import "github.com/pulsewatch/pulsewatch/internal/alerts"

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Alerts []alerts.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// StatsResponse is the payload for GET /api/v1/stats.
type StatsResponse struct {
	Stats            alerts.Stats `json:"stats"`
	NotifierDegraded bool         `json:"notifier_degraded"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	GeneratedAt      string       `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
