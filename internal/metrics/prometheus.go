package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the contract gateway
type PrometheusMetrics struct {
	// Connection and RPC metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Contract call metrics
	ContractCallsTotal *prometheus.CounterVec

	// Transaction lifecycle metrics
	TransactionsSubmittedTotal *prometheus.CounterVec
	TransactionsResolvedTotal  *prometheus.CounterVec
	ConfirmationDuration       *prometheus.HistogramVec

	// Journal metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_connection_errors_total",
				Help: "Total number of connection errors to chain nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rpc_requests_total",
				Help: "Total number of RPC requests made to chain nodes",
			},
			[]string{"endpoint", "method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to chain nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		ContractCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_contract_calls_total",
				Help: "Total number of contract read calls by method and outcome",
			},
			[]string{"method", "status"},
		),

		TransactionsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_transactions_submitted_total",
				Help: "Total number of state-changing calls submitted",
			},
			[]string{"method", "status"},
		),

		TransactionsResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_transactions_resolved_total",
				Help: "Total number of transactions that reached a final state",
			},
			[]string{"method", "outcome"},
		),

		ConfirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_confirmation_duration_seconds",
				Help:    "Time between submission and inclusion",
				Buckets: []float64{1, 5, 12, 24, 48, 96, 192, 384},
			},
			[]string{"method"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_database_operations_total",
				Help: "Total number of transaction journal operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_database_operation_duration_seconds",
				Help:    "Duration of transaction journal operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordContractCall records a contract read
func (m *PrometheusMetrics) RecordContractCall(method, status string) {
	m.ContractCallsTotal.WithLabelValues(method, status).Inc()
}

// RecordTransactionSubmitted records a submission attempt
func (m *PrometheusMetrics) RecordTransactionSubmitted(method, status string) {
	m.TransactionsSubmittedTotal.WithLabelValues(method, status).Inc()
}

// RecordTransactionResolved records a final transaction outcome
func (m *PrometheusMetrics) RecordTransactionResolved(method, outcome string, waited time.Duration) {
	m.TransactionsResolvedTotal.WithLabelValues(method, outcome).Inc()
	m.ConfirmationDuration.WithLabelValues(method).Observe(waited.Seconds())
}

// RecordDatabaseOperation records a journal operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
