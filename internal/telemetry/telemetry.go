// Package telemetry provides observability with Prometheus metrics and
// structured logging for the gateway and control plane.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for mcpgate.
type Metrics struct {
	// JSON-RPC / gateway dispatch
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// EXECUTE_TOOL / proxied tool calls
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	ToolCallErrors    *prometheus.CounterVec

	// SEARCH_TOOLS
	SearchToolsTotal    *prometheus.CounterVec
	SearchToolsFallback prometheus.Counter

	// Sessions
	ActiveSessions prometheus.Gauge
	SessionsExpired prometheus.Counter

	// Catalog sync
	CatalogSyncTotal     *prometheus.CounterVec
	CatalogSyncDuration  *prometheus.HistogramVec
	CatalogSyncSkipped   prometheus.Counter
	ToolsUpserted        *prometheus.CounterVec
	ToolsRemoved         *prometheus.CounterVec

	// OAuth2 client manager
	OAuth2RefreshTotal *prometheus.CounterVec
	OAuth2RefreshErrors *prometheus.CounterVec

	// Upstream MCP connections
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamErrorsTotal   *prometheus.CounterVec
	UpstreamLatency       *prometheus.HistogramVec

	// Billing
	StripeWebhooksTotal *prometheus.CounterVec
	EntitlementDenials  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against registry (or
// the default registry if nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_jsonrpc_requests_total",
				Help: "Total JSON-RPC requests handled by the gateway",
			},
			[]string{"method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgate_jsonrpc_request_duration_seconds",
				Help:    "JSON-RPC request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpgate_jsonrpc_requests_in_flight",
				Help: "JSON-RPC requests currently being processed",
			},
		),

		ToolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_tool_calls_total",
				Help: "Total proxied tool calls",
			},
			[]string{"mcp_server", "tool", "status"},
		),
		ToolCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgate_tool_call_duration_seconds",
				Help:    "Proxied tool call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60},
			},
			[]string{"mcp_server"},
		),
		ToolCallErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_tool_call_errors_total",
				Help: "Proxied tool call errors by reason",
			},
			[]string{"mcp_server", "reason"},
		),

		SearchToolsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_search_tools_total",
				Help: "Total SEARCH_TOOLS invocations",
			},
			[]string{"mode"}, // "vector" or "fuzzy"
		),
		SearchToolsFallback: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpgate_search_tools_fuzzy_fallback_total",
				Help: "SEARCH_TOOLS calls that fell back to fuzzy text matching",
			},
		),

		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpgate_active_sessions",
				Help: "Currently active (non-expired) gateway sessions",
			},
		),
		SessionsExpired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpgate_sessions_expired_total",
				Help: "Sessions reclaimed for idle TTL expiry",
			},
		),

		CatalogSyncTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_catalog_sync_total",
				Help: "Total tool catalog sync runs",
			},
			[]string{"mcp_server", "status"},
		),
		CatalogSyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgate_catalog_sync_duration_seconds",
				Help:    "Tool catalog sync duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"mcp_server"},
		),
		CatalogSyncSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpgate_catalog_sync_rate_limited_total",
				Help: "Catalog sync attempts skipped by the 1/60s rate limit",
			},
		),
		ToolsUpserted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_catalog_tools_upserted_total",
				Help: "Tools inserted or updated during catalog sync",
			},
			[]string{"mcp_server"},
		),
		ToolsRemoved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_catalog_tools_removed_total",
				Help: "Tools removed during catalog sync reconciliation",
			},
			[]string{"mcp_server"},
		),

		OAuth2RefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_oauth2_refresh_total",
				Help: "Total OAuth2 token refresh attempts",
			},
			[]string{"mcp_server", "status"},
		),
		OAuth2RefreshErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_oauth2_refresh_errors_total",
				Help: "OAuth2 token refresh errors by reason",
			},
			[]string{"mcp_server", "reason"},
		),

		UpstreamRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_upstream_requests_total",
				Help: "Requests sent to upstream MCP servers",
			},
			[]string{"mcp_server", "method"},
		),
		UpstreamErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_upstream_errors_total",
				Help: "Errors from upstream MCP servers",
			},
			[]string{"mcp_server", "reason"},
		),
		UpstreamLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgate_upstream_latency_seconds",
				Help:    "Upstream MCP server round-trip latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30},
			},
			[]string{"mcp_server"},
		),

		StripeWebhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_stripe_webhooks_total",
				Help: "Total processed Stripe webhook events",
			},
			[]string{"event_type", "status"},
		),
		EntitlementDenials: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgate_entitlement_denials_total",
				Help: "Requests denied for exceeding plan entitlements",
			},
			[]string{"reason"},
		),
	}
}

// Handler returns an HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestRecorder tracks one in-flight JSON-RPC request.
type RequestRecorder struct {
	metrics   *Metrics
	method    string
	startTime time.Time
}

// NewRequestRecorder starts recording one JSON-RPC request.
func (m *Metrics) NewRequestRecorder(method string) *RequestRecorder {
	m.RequestsInFlight.Inc()
	return &RequestRecorder{metrics: m, method: method, startTime: time.Now()}
}

// RecordSuccess finalizes the recorder as a success.
func (r *RequestRecorder) RecordSuccess() {
	r.finish("success")
}

// RecordError finalizes the recorder as an error.
func (r *RequestRecorder) RecordError() {
	r.finish("error")
}

func (r *RequestRecorder) finish(status string) {
	duration := time.Since(r.startTime).Seconds()
	r.metrics.RequestsInFlight.Dec()
	r.metrics.RequestsTotal.WithLabelValues(r.method, status).Inc()
	r.metrics.RequestDuration.WithLabelValues(r.method).Observe(duration)
}

// RecordToolCall records one proxied EXECUTE_TOOL invocation.
func (m *Metrics) RecordToolCall(mcpServer, tool, status string, duration time.Duration) {
	m.ToolCallsTotal.WithLabelValues(mcpServer, tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(mcpServer).Observe(duration.Seconds())
}

// RecordToolCallError records a proxied tool call failure by reason.
func (m *Metrics) RecordToolCallError(mcpServer, reason string) {
	m.ToolCallErrors.WithLabelValues(mcpServer, reason).Inc()
}

// RecordSearchTools records one SEARCH_TOOLS invocation.
func (m *Metrics) RecordSearchTools(mode string) {
	m.SearchToolsTotal.WithLabelValues(mode).Inc()
	if mode == "fuzzy" {
		m.SearchToolsFallback.Inc()
	}
}

// RecordCatalogSync records the outcome of one catalog sync run.
func (m *Metrics) RecordCatalogSync(mcpServer, status string, duration time.Duration) {
	m.CatalogSyncTotal.WithLabelValues(mcpServer, status).Inc()
	m.CatalogSyncDuration.WithLabelValues(mcpServer).Observe(duration.Seconds())
}

// RecordOAuth2Refresh records the outcome of one token refresh.
func (m *Metrics) RecordOAuth2Refresh(mcpServer, status string) {
	m.OAuth2RefreshTotal.WithLabelValues(mcpServer, status).Inc()
}

// Logger is the structured logging interface used throughout the
// codebase; satisfied by *slog.Logger via SlogAdapter.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
}

// SlogAdapter wraps *slog.Logger to satisfy Logger.
type SlogAdapter struct{ l *slog.Logger }

// NewSlogAdapter wraps l.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter { return &SlogAdapter{l: l} }

func (s *SlogAdapter) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *SlogAdapter) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *SlogAdapter) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *SlogAdapter) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }
func (s *SlogAdapter) With(fields ...any) Logger       { return &SlogAdapter{l: s.l.With(fields...)} }

type loggerContextKey struct{}

// LoggerFromContext retrieves the logger stored in ctx, or a no-op
// logger if none was attached.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return &noopLogger{}
}

// ContextWithLogger returns a copy of ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...any) {}
func (noopLogger) Info(msg string, fields ...any)  {}
func (noopLogger) Warn(msg string, fields ...any)  {}
func (noopLogger) Error(msg string, fields ...any) {}
func (l noopLogger) With(fields ...any) Logger     { return l }

// NewJSONLogger builds the process-wide slog logger per the
// configured log level ("debug"|"info"|"warn"|"error").
func NewJSONLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
