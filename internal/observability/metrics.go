package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application
// metrics for the hook lifecycle engine, the agent orchestrator, and the
// persistence/admin layers beneath them.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.HookTransition("container", "starting", "running")
//	defer metrics.ToolInvocationDuration("weather__get_forecast").Observe(time.Since(start).Seconds())
type Metrics struct {
	// HookLifecycleCounter counts lifecycle operations by runtime and
	// outcome. Labels: runtime (container|embedded|gateway), operation
	// (install|start|stop|restart|uninstall|update|rollback), status
	// (success|error)
	HookLifecycleCounter *prometheus.CounterVec

	// HookLifecycleDuration measures how long a lifecycle operation took.
	// Labels: runtime, operation
	HookLifecycleDuration *prometheus.HistogramVec

	// HookInstancesGauge tracks the current count of instances by status.
	// Labels: status (installing|installed|starting|running|stopping|
	// stopped|error|uninstalling|updating)
	HookInstancesGauge *prometheus.GaugeVec

	// HealthCheckCounter counts health surveillance probes.
	// Labels: hook_id, result (healthy|unhealthy|unknown)
	HealthCheckCounter *prometheus.CounterVec

	// HealthCheckDuration measures health probe latency in seconds.
	HealthCheckDuration *prometheus.HistogramVec

	// PortsInUse tracks how many ports in the configured range are leased.
	PortsInUse prometheus.Gauge

	// PortAllocationErrors counts port range exhaustion events.
	PortAllocationErrors prometheus.Counter

	// ReconcileCounter counts reconciliation sweep outcomes.
	// Labels: outcome (adopted|drifted|unchanged|error)
	ReconcileCounter *prometheus.CounterVec

	// ToolInvocationCounter counts hook endpoint invocations dispatched as
	// agent tool calls. Labels: tool_name, status (success|error)
	ToolInvocationCounter *prometheus.CounterVec

	// ToolInvocationDuration measures hook endpoint invocation latency.
	// Labels: tool_name
	ToolInvocationDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// AgentRunCounter counts agent runs by terminal status.
	// Labels: status (completed|failed|timeout)
	AgentRunCounter *prometheus.CounterVec

	// AgentRunDuration measures an agent run's wall-clock duration.
	AgentRunDuration prometheus.Histogram

	// AgentRunSteps measures how many ReAct steps a run took.
	AgentRunSteps prometheus.Histogram

	// ProgressSubscribers tracks live install progress stream subscribers.
	ProgressSubscribers prometheus.Gauge

	// HTTPRequestDuration measures admin API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts admin API requests.
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures persistence port query latency.
	// Labels: operation, table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts persistence port queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and taxonomy code.
	// Labels: component, code
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		HookLifecycleCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_hook_lifecycle_total",
				Help: "Total lifecycle operations by runtime, operation, and outcome",
			},
			[]string{"runtime", "operation", "status"},
		),

		HookLifecycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_hook_lifecycle_duration_seconds",
				Help:    "Duration of lifecycle operations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"runtime", "operation"},
		),

		HookInstancesGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forgehostd_hook_instances",
				Help: "Current number of hook instances by status",
			},
			[]string{"status"},
		),

		HealthCheckCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_health_checks_total",
				Help: "Total health surveillance probes by hook and result",
			},
			[]string{"hook_id", "result"},
		),

		HealthCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_health_check_duration_seconds",
				Help:    "Duration of health check probes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"hook_id"},
		),

		PortsInUse: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "forgehostd_ports_in_use",
				Help: "Current number of leased ports in the configured range",
			},
		),

		PortAllocationErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forgehostd_port_allocation_errors_total",
				Help: "Total port allocation failures due to range exhaustion",
			},
		),

		ReconcileCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_reconcile_total",
				Help: "Total reconciliation sweep outcomes",
			},
			[]string{"outcome"},
		),

		ToolInvocationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_tool_invocations_total",
				Help: "Total hook endpoint invocations by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolInvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_tool_invocation_duration_seconds",
				Help:    "Duration of hook endpoint invocations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		AgentRunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_agent_runs_total",
				Help: "Total agent runs by terminal status",
			},
			[]string{"status"},
		),

		AgentRunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forgehostd_agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),

		AgentRunSteps: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forgehostd_agent_run_steps",
				Help:    "Number of ReAct steps taken per agent run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),

		ProgressSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "forgehostd_progress_subscribers",
				Help: "Current number of live install progress stream subscribers",
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_http_request_duration_seconds",
				Help:    "Duration of admin API requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_http_requests_total",
				Help: "Total number of admin API requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forgehostd_database_query_duration_seconds",
				Help:    "Duration of persistence port queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_database_queries_total",
				Help: "Total number of persistence port queries",
			},
			[]string{"operation", "table", "status"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forgehostd_errors_total",
				Help: "Total number of errors by component and taxonomy code",
			},
			[]string{"component", "code"},
		),
	}
}

// HookTransition records a lifecycle state transition's outcome.
func (m *Metrics) HookTransition(runtime, operation, status string) {
	m.HookLifecycleCounter.WithLabelValues(runtime, operation, status).Inc()
}

// HookLifecycleObserve records how long a lifecycle operation took.
func (m *Metrics) HookLifecycleObserve(runtime, operation string, durationSeconds float64) {
	m.HookLifecycleDuration.WithLabelValues(runtime, operation).Observe(durationSeconds)
}

// SetHookInstances sets the current gauge value for a given status.
func (m *Metrics) SetHookInstances(status string, count int) {
	m.HookInstancesGauge.WithLabelValues(status).Set(float64(count))
}

// RecordHealthCheck records a health surveillance probe outcome.
func (m *Metrics) RecordHealthCheck(hookID, result string, durationSeconds float64) {
	m.HealthCheckCounter.WithLabelValues(hookID, result).Inc()
	m.HealthCheckDuration.WithLabelValues(hookID).Observe(durationSeconds)
}

// SetPortsInUse sets the current leased-port gauge.
func (m *Metrics) SetPortsInUse(count int) {
	m.PortsInUse.Set(float64(count))
}

// RecordPortAllocationError increments the port exhaustion counter.
func (m *Metrics) RecordPortAllocationError() {
	m.PortAllocationErrors.Inc()
}

// RecordReconcile records one reconciliation sweep outcome.
func (m *Metrics) RecordReconcile(outcome string) {
	m.ReconcileCounter.WithLabelValues(outcome).Inc()
}

// RecordToolInvocation records a hook endpoint invocation dispatched by the
// agent orchestrator.
func (m *Metrics) RecordToolInvocation(toolName, status string, durationSeconds float64) {
	m.ToolInvocationCounter.WithLabelValues(toolName, status).Inc()
	m.ToolInvocationDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordLLMCost records estimated API cost.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordAgentRun records a completed agent run's terminal status, duration,
// and step count.
func (m *Metrics) RecordAgentRun(status string, durationSeconds float64, steps int) {
	m.AgentRunCounter.WithLabelValues(status).Inc()
	m.AgentRunDuration.Observe(durationSeconds)
	m.AgentRunSteps.Observe(float64(steps))
}

// SetProgressSubscribers sets the current live subscriber gauge.
func (m *Metrics) SetProgressSubscribers(count int) {
	m.ProgressSubscribers.Set(float64(count))
}

// RecordHTTPRequest records metrics for an admin API request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a persistence port query.
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and
// taxonomy code (see internal/forgehosterr).
func (m *Metrics) RecordError(component, code string) {
	m.ErrorCounter.WithLabelValues(component, code).Inc()
}
