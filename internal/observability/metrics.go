package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	proxyDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments of the runtime. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal       *prometheus.CounterVec
	ProxyRequestDuration     *prometheus.HistogramVec
	ProxyCircuitBreakerState *prometheus.GaugeVec
	ProxyRetriesTotal        *prometheus.CounterVec

	// Data runtime metrics
	StoreLoadsTotal         *prometheus.CounterVec
	StoreLoadDuration       *prometheus.HistogramVec
	ValidationFailuresTotal *prometheus.CounterVec
	ActionDispatchesTotal   *prometheus.CounterVec
	ActionDuration          *prometheus.HistogramVec
	UnsupportedNodesTotal   *prometheus.CounterVec
	IdempotentReplaysTotal  prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
	OpenAPISchemasIndexed *prometheus.GaugeVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Proxy
		ProxyRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_proxy_requests_total",
			Help: "Total number of proxy requests against remote collections.",
		}, []string{"proxy", "method", "status"}),
		ProxyRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_proxy_request_duration_seconds",
			Help:    "Proxy request duration in seconds.",
			Buckets: proxyDurationBuckets,
		}, []string{"proxy"}),
		ProxyCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uibind_proxy_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"proxy"}),
		ProxyRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_proxy_retries_total",
			Help: "Total number of proxy request retries.",
		}, []string{"proxy"}),

		// Data runtime
		StoreLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_store_loads_total",
			Help: "Total number of store loads by data source.",
		}, []string{"store", "source", "status"}),
		StoreLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_store_load_duration_seconds",
			Help:    "Store load duration in seconds.",
			Buckets: proxyDurationBuckets,
		}, []string{"store"}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_validation_failures_total",
			Help: "Total number of failed record validations.",
		}, []string{"model"}),
		ActionDispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_action_dispatches_total",
			Help: "Total number of controller action dispatches.",
		}, []string{"action", "status"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uibind_action_duration_seconds",
			Help:    "Controller action duration in seconds.",
			Buckets: proxyDurationBuckets,
		}, []string{"action"}),
		UnsupportedNodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_unsupported_nodes_total",
			Help: "Total number of descriptors resolved to the unsupported placeholder.",
		}, []string{"type"}),
		IdempotentReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uibind_idempotent_replays_total",
			Help: "Total number of action results served from the idempotency store.",
		}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uibind_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uibind_definitions_loaded",
			Help: "Number of loaded definition files.",
		}),
		OpenAPISchemasIndexed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uibind_openapi_schemas_indexed",
			Help: "Number of indexed OpenAPI component schemas.",
		}, []string{"service_id"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.ProxyRequestsTotal,
		m.ProxyRequestDuration,
		m.ProxyCircuitBreakerState,
		m.ProxyRetriesTotal,
		m.StoreLoadsTotal,
		m.StoreLoadDuration,
		m.ValidationFailuresTotal,
		m.ActionDispatchesTotal,
		m.ActionDuration,
		m.UnsupportedNodesTotal,
		m.IdempotentReplaysTotal,
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.OpenAPISchemasIndexed,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordProxyRequest records one proxy round trip. status is the HTTP status,
// or 0 when no response was received.
func (m *Metrics) RecordProxyRequest(proxy, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProxyRequestsTotal.WithLabelValues(proxy, method, strconv.Itoa(status)).Inc()
	m.ProxyRequestDuration.WithLabelValues(proxy).Observe(duration.Seconds())
}

// SetProxyCircuitBreakerState sets the circuit breaker state for a proxy.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetProxyCircuitBreakerState(proxy string, state float64) {
	if m == nil {
		return
	}
	m.ProxyCircuitBreakerState.WithLabelValues(proxy).Set(state)
}

// RecordProxyRetry records a proxy request retry.
func (m *Metrics) RecordProxyRetry(proxy string) {
	if m == nil {
		return
	}
	m.ProxyRetriesTotal.WithLabelValues(proxy).Inc()
}

// RecordStoreLoad records a store load. source is proxy, model or local.
func (m *Metrics) RecordStoreLoad(store, source, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreLoadsTotal.WithLabelValues(store, source, status).Inc()
	m.StoreLoadDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// RecordValidationFailure records a failed record validation.
func (m *Metrics) RecordValidationFailure(modelName string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(modelName).Inc()
}

// RecordActionDispatch records a controller dispatch. status is success,
// error or missing.
func (m *Metrics) RecordActionDispatch(action, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActionDispatchesTotal.WithLabelValues(action, status).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordUnsupportedNode records a descriptor resolved to the placeholder.
func (m *Metrics) RecordUnsupportedNode(nodeType string) {
	if m == nil {
		return
	}
	m.UnsupportedNodesTotal.WithLabelValues(nodeType).Inc()
}

// RecordIdempotentReplay records an action result served from the store.
func (m *Metrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplaysTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definition files.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// SetOpenAPISchemasIndexed sets the number of indexed component schemas.
func (m *Metrics) SetOpenAPISchemasIndexed(serviceID string, count float64) {
	if m == nil {
		return
	}
	m.OpenAPISchemasIndexed.WithLabelValues(serviceID).Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
