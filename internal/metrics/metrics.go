// Package metrics holds the Prometheus collectors for the guide pipeline.
// All collectors register against the default registry; Handler exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ── Identity pool ─────────────────────────────────────────────────────────────

// SlotAcquisitions counts round-robin slot hand-outs by slot index.
var SlotAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plutoguide_slot_acquisitions_total",
	Help: "Identity slots handed out by the pool.",
}, []string{"slot"})

// TokenRefreshes counts boot calls by region and result (ok / error).
var TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plutoguide_token_refreshes_total",
	Help: "Session token refreshes by region and result.",
}, []string{"region", "result"})

// TokenCacheHits counts token requests served from a slot cache.
var TokenCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plutoguide_token_cache_hits_total",
	Help: "Token requests served from a fresh cached token.",
}, []string{"region"})

// ── Backend calls ─────────────────────────────────────────────────────────────

// BackendRequests counts backend API calls by endpoint and outcome.
var BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plutoguide_backend_requests_total",
	Help: "Backend API requests by endpoint and outcome.",
}, []string{"endpoint", "outcome"})

// BackendDuration tracks backend API latency by endpoint.
var BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "plutoguide_backend_request_duration_seconds",
	Help:    "Backend API latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"endpoint"})

// ── Guide ─────────────────────────────────────────────────────────────────────

// CatalogChannels is the channel count of the last catalog fetched per region.
var CatalogChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "plutoguide_catalog_channels",
	Help: "Channels in the last fetched catalog per region.",
}, []string{"region"})

// TimelinePages counts timeline pages accumulated per region.
var TimelinePages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plutoguide_timeline_pages_total",
	Help: "Timeline pages accumulated by the EPG aggregator.",
}, []string{"region"})

// DroppedDuplicates counts timeline entries dropped by cross-region dedup.
var DroppedDuplicates = promauto.NewCounter(prometheus.CounterOpts{
	Name: "plutoguide_timeline_duplicates_dropped_total",
	Help: "Timeline entries dropped because their channel already reached the window count.",
})

// GuideProgrammes is the programme count of the guide currently served.
var GuideProgrammes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "plutoguide_guide_programmes",
	Help: "Programmes in the guide currently served.",
})

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
