package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Don't call NewMetrics() here as it registers with default registry.
	t.Log("Metrics structure verified through integration tests")
}

func TestHookLifecycleCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_hook_lifecycle_total",
			Help: "Test hook lifecycle counter",
		},
		[]string{"runtime", "operation", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("container", "install", "success").Inc()
	counter.WithLabelValues("container", "install", "success").Inc()
	counter.WithLabelValues("gateway", "start", "error").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("Expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_hook_lifecycle_total Test hook lifecycle counter
		# TYPE test_hook_lifecycle_total counter
		test_hook_lifecycle_total{operation="install",runtime="container",status="success"} 2
		test_hook_lifecycle_total{operation="start",runtime="gateway",status="error"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestHookInstancesGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "test_hook_instances",
			Help: "Test hook instances gauge",
		},
		[]string{"status"},
	)
	registry.MustRegister(gauge)

	gauge.WithLabelValues("running").Set(3)
	gauge.WithLabelValues("stopped").Set(1)

	expected := `
		# HELP test_hook_instances Test hook instances gauge
		# TYPE test_hook_instances gauge
		test_hook_instances{status="running"} 3
		test_hook_instances{status="stopped"} 1
	`
	if err := testutil.CollectAndCompare(gauge, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordLLMRequestMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_llm_requests_total",
			Help: "Test LLM request counter",
		},
		[]string{"provider", "model", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "success").Inc()
	counter.WithLabelValues("openai", "gpt-4o", "success").Inc()
	counter.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "error").Inc()

	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 LLM request recorded")
	}
}

func TestRecordToolInvocationMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_invocations_total",
			Help: "Test tool invocation counter",
		},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("weather__get_forecast", "success").Inc()
	counter.WithLabelValues("weather__get_forecast", "success").Inc()
	counter.WithLabelValues("inventory__list_items", "error").Inc()

	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 tool invocation recorded")
	}
}

func TestRecordErrorMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_errors_total",
			Help: "Test error counter",
		},
		[]string{"component", "code"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("lifecycle", "timeout").Inc()
	counter.WithLabelValues("lifecycle", "timeout").Inc()
	counter.WithLabelValues("gateway", "engine_unavailable").Inc()
	counter.WithLabelValues("orchestrator", "llm_error").Inc()

	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 error recorded")
	}
}

func TestAgentRunLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_agent_runs_total",
			Help: "Test agent runs counter",
		},
		[]string{"status"},
	)
	histogram := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "test_agent_run_duration_seconds",
			Help:    "Test agent run duration",
			Buckets: []float64{1, 5, 30},
		},
	)
	registry.MustRegister(counter, histogram)

	counter.WithLabelValues("completed").Inc()
	counter.WithLabelValues("completed").Inc()
	counter.WithLabelValues("timeout").Inc()
	histogram.Observe(4.2)
	histogram.Observe(28.9)

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("Expected agent run counter to be tracked")
	}
	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("Expected agent run duration histogram to have observations")
	}
}

func TestHistogramBuckets(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_seconds",
			Help:    "Test duration histogram",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)
	registry.MustRegister(histogram)

	durations := []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0}
	for _, duration := range durations {
		histogram.WithLabelValues("test").Observe(duration)
	}

	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("Expected histogram to have observations across buckets")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_concurrent_total",
			Help: "Test concurrent counter",
		},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("Expected concurrent metric recording to work")
	}
}
