// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_deliveries_total",
		Help: "Delivery tasks by content kind and outcome",
	}, []string{"kind", "result"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediabot_delivery_duration_seconds",
		Help:    "End-to-end duration of a delivery task",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"result"})

	DownloadedBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_downloaded_bytes_total",
		Help: "Bytes downloaded through the secondary session",
	}, []string{"kind"})

	QuotaDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_quota_denials_total",
		Help: "Quota denials by reason",
	}, []string{"reason"})

	FloodWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_flood_waits_total",
		Help: "Flood-wait signals received from Telegram",
	}, []string{"op"})

	FloodWaitSecondsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_flood_wait_seconds_total",
		Help: "Time in seconds Telegram asked us to wait",
	}, []string{"op"})

	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_session_reconnects_total",
		Help: "Connection attempts of the secondary session",
	}, []string{"result"})

	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediabot_session_state",
		Help: "1 for the current state of the secondary session",
	}, []string{"state"})

	PremiumGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabot_premium_grants_total",
		Help: "Premium grants by payment provider and level",
	}, []string{"provider", "level"})

	InFlightTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediabot_inflight_tasks",
		Help: "Delivery tasks currently running",
	})
)
