package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "reviewdesk"

// providerBuckets covers provider calls that include 429 backoff sleeps.
var providerBuckets = []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16, 32, 64}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

var (
	HTTPRequests     = counter("http_requests_total", "HTTP requests.", "route", "method", "status")
	HTTPLatency      = histogram("http_request_duration_seconds", "HTTP request duration seconds.", prometheus.DefBuckets, "route", "method")
	ExternalRequests = counter("external_requests_total", "Outbound provider requests; status 0 is a transport error.", "service", "endpoint", "status")
	ExternalLatency  = histogram("external_request_duration_seconds", "Outbound provider request duration seconds.", providerBuckets, "service", "endpoint")
	CacheEvents      = counter("cache_events_total", "Cache events by key family.", "family", "event")         // event: hit|miss|set|del|error
	SyncAttempts     = counter("sync_attempts_total", "Review sync attempts by outcome.", "source", "outcome") // outcome: success|failure|rate_limited
	ReviewsSynced    = counter("reviews_synced_total", "Reviews upserted by sync.", "source")
	SyncDuration     = histogram("sync_duration_seconds", "Review sync duration seconds.", providerBuckets, "source")
)

// InitRegistry registers the app collectors plus Go runtime and process metrics.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequests, HTTPLatency,
		ExternalRequests, ExternalLatency,
		CacheEvents,
		SyncAttempts, ReviewsSynced, SyncDuration,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Serve exposes reg on a side listener. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(family, event string) {
	CacheEvents.WithLabelValues(family, event).Inc()
}

// ObserveSync records one sync attempt. synced and dur are skipped when zero.
func ObserveSync(source, outcome string, synced int, dur time.Duration) {
	SyncAttempts.WithLabelValues(source, outcome).Inc()
	if synced > 0 {
		ReviewsSynced.WithLabelValues(source).Add(float64(synced))
	}
	if dur > 0 {
		SyncDuration.WithLabelValues(source).Observe(dur.Seconds())
	}
}
