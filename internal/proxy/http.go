package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/model"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// HTTPTransport talks to a REST collection endpoint:
//
//	GET    {base}?page=&limit=&sort=&filter=
//	GET    {base}/{id}
//	POST   {base}
//	PUT    {base}/{id}
//	DELETE {base}/{id}
//
// Idempotent requests are retried on 5xx responses and unclassified network
// failures according to the retry policy. All requests pass through a circuit breaker.
type HTTPTransport struct {
	name    string
	baseURL string
	headers map[string]string
	retry   model.RetryPolicy
	client  *http.Client
	breaker *CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client. The proxy timeout is not
// applied to a supplied client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithMetrics records proxy metrics.
func WithMetrics(m *observability.Metrics) HTTPOption {
	return func(t *HTTPTransport) { t.metrics = m }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport creates a transport for cfg. cfg should already carry
// defaults (see WithDefaults).
func NewHTTPTransport(name string, cfg model.ProxyConfig, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		retry:   cfg.Retry,
		logger:  zap.NewNop(),
		breaker: NewCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		t.client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	t.breaker.OnStateChange(func(s BreakerState) {
		t.metrics.SetProxyCircuitBreakerState(t.name, float64(s))
	})
	return t
}

// Breaker exposes the circuit breaker for diagnostics.
func (t *HTTPTransport) Breaker() *CircuitBreaker { return t.breaker }

// Do executes req and returns the decoded JSON body. Non-2xx responses and
// network failures become TRANSPORT_ERROR envelopes wrapping the cause.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (any, error) {
	ctx, span := observability.StartSpan(ctx, "proxy.request",
		observability.AttrProxy.String(t.name),
	)
	result, err := t.executeWithRetry(ctx, req)
	observability.EndSpanWithError(span, err)
	return result, err
}

func (t *HTTPTransport) executeWithRetry(ctx context.Context, req Request) (any, error) {
	reqURL := t.requestURL(req)

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("proxy: marshal body: %w", err)
		}
	}

	maxAttempts := t.retry.MaxAttempts
	if maxAttempts < 1 || !isIdempotentMethod(req.Method) {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t.metrics.RecordProxyRetry(t.name)
			select {
			case <-ctx.Done():
				return nil, model.NewTransportError(0, model.NewBackendTimeoutError())
			case <-time.After(calculateBackoff(t.retry, attempt)):
			}
		}

		result, status, err := t.executeOnce(ctx, req.Method, reqURL, bodyBytes)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(status, err) {
			break
		}
		t.logger.Debug("proxy: retrying request",
			zap.String("proxy", t.name),
			zap.String("method", req.Method),
			zap.Int("attempt", attempt+1),
			zap.Int("max", maxAttempts),
			zap.Int("status", status),
		)
	}
	return nil, lastErr
}

// executeOnce performs a single request with circuit breaker protection and
// returns the decoded body, the response status (0 without a response) and
// an error.
func (t *HTTPTransport) executeOnce(ctx context.Context, method, reqURL string, bodyBytes []byte) (any, int, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, 0, model.NewTransportError(0, model.NewBackendUnavailableError())
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("proxy: build request: %w", err)
	}
	httpReq.Header = t.requestHeaders(ctx, method)

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.breaker.RecordFailure()
		t.metrics.RecordProxyRequest(t.name, method, 0, time.Since(start))
		t.logger.Error("proxy: request failed",
			zap.String("proxy", t.name),
			zap.String("method", method),
			zap.Error(err),
		)
		switch {
		case ctx.Err() != nil:
			return nil, 0, model.NewTransportError(0, model.NewBackendTimeoutError())
		case isConnectionError(err):
			return nil, 0, model.NewTransportError(0, model.NewBackendUnavailableError())
		}
		return nil, 0, model.NewTransportError(0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	t.metrics.RecordProxyRequest(t.name, method, resp.StatusCode, time.Since(start))
	if err != nil {
		t.breaker.RecordFailure()
		return nil, resp.StatusCode, model.NewTransportError(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	// 4xx responses are the caller's problem, not the backend's health.
	switch {
	case resp.StatusCode >= 500:
		t.breaker.RecordFailure()
	case resp.StatusCode < 400:
		t.breaker.RecordSuccess()
	}

	var parsed any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, model.NewTransportError(resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}

	if resp.StatusCode >= 300 {
		t.logger.Debug("proxy: non-success status",
			zap.String("proxy", t.name),
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, resp.StatusCode, model.NewTransportError(resp.StatusCode,
			fmt.Errorf("%s %s: %s", method, reqURL, http.StatusText(resp.StatusCode)))
	}
	return parsed, resp.StatusCode, nil
}

func (t *HTTPTransport) requestURL(req Request) string {
	u := t.baseURL
	if req.ID != nil {
		u += "/" + url.PathEscape(model.IDString(req.ID))
	}
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func (t *HTTPTransport) requestHeaders(ctx context.Context, method string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Type", "application/json")
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.CorrelationID != "" {
			h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
		if rctx.Locale != "" {
			h.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}
	// Configured headers override the standard ones.
	for k, v := range t.headers {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	observability.InjectTraceHeaders(ctx, h)
	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// isRetryable retries gateway-class statuses and raw network failures.
// Failures already classified (breaker open, timeout, unreachable backend)
// carry a nested envelope and are not retried.
func isRetryable(status int, err error) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case 0:
		var env *model.ErrorEnvelope
		if !errors.As(err, &env) {
			return false
		}
		var inner *model.ErrorEnvelope
		return !errors.As(env.Unwrap(), &inner)
	}
	return false
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func calculateBackoff(cfg model.RetryPolicy, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := cfg.BackoffMax
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}
