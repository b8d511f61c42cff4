package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 信号指标
	signalsGathered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_signals_gathered_total",
			Help: "Total number of sentiment signals persisted",
		},
		[]string{"source"},
	)

	sourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_source_failures_total",
			Help: "Total number of social source fetch failures",
		},
		[]string{"source"},
	)

	// 风控指标
	guardrailRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_guardrail_rejections_total",
			Help: "Total number of trades rejected by guardrails",
		},
		[]string{"rule"},
	)

	decisionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_decision_outcomes_total",
			Help: "Total number of decision loop candidate outcomes",
		},
		[]string{"outcome"},
	)

	// 订单指标
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_order_total",
			Help: "Total number of broker orders",
		},
		[]string{"side", "status"},
	)

	positionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_positions_closed_total",
			Help: "Total number of positions closed",
		},
		[]string{"reason"},
	)

	openPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepilot_open_positions",
			Help: "Number of open positions",
		},
	)

	allocation = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepilot_current_allocation",
			Help: "Capital currently allocated to open positions",
		},
	)

	equity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepilot_equity",
			Help: "Latest account equity",
		},
	)

	alertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_alerts_total",
			Help: "Total number of proactive alerts created",
		},
		[]string{"type"},
	)

	// 任务指标
	taskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_task_runs_total",
			Help: "Total number of scheduled task runs",
		},
		[]string{"task", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradepilot_task_duration_seconds",
			Help:    "Scheduled task duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"task"},
	)

	externalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradepilot_external_request_seconds",
			Help:    "Latency of calls to external services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
		},
		[]string{"service", "status"},
	)
)

func RecordSignals(source string, n int) {
	if n <= 0 {
		return
	}
	signalsGathered.WithLabelValues(source).Add(float64(n))
}

func RecordSourceFailure(source string) {
	sourceFailures.WithLabelValues(source).Inc()
}

func RecordGuardrailRejection(rule string) {
	guardrailRejections.WithLabelValues(rule).Inc()
}

// RecordDecision 记录候选的处理结果：opened/skipped/error。
func RecordDecision(outcome string) {
	decisionOutcomes.WithLabelValues(outcome).Inc()
}

func RecordOrder(side, status string) {
	orderTotal.WithLabelValues(side, status).Inc()
}

func RecordPositionClosed(reason string) {
	positionsClosed.WithLabelValues(reason).Inc()
}

func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

func SetAllocation(v float64) {
	allocation.Set(v)
}

func SetEquity(v float64) {
	equity.Set(v)
}

func RecordAlert(alertType string) {
	alertsCreated.WithLabelValues(alertType).Inc()
}

// RecordTask 记录一次周期任务执行结果。
func RecordTask(task, status string, elapsed time.Duration) {
	taskRuns.WithLabelValues(task, status).Inc()
	taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

// ObserveExternal 记录外部服务调用耗时。
func ObserveExternal(service string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	externalLatency.WithLabelValues(service, status).Observe(elapsed.Seconds())
}
