package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Workflow
	RequestsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lending_requests_created_total",
			Help: "Total lending requests created",
		},
	)
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_status_transitions_total",
			Help: "Total successful request status transitions",
		},
		[]string{"from", "to"},
	)
	WorkflowFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_workflow_failures_total",
			Help: "Total rejected workflow operations by error kind",
		},
		[]string{"op", "kind"},
	)
	OTPGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_otp_generated_total",
			Help: "Total one-time passcodes issued",
		},
		[]string{"status"},
	)

	AuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lending_audit_dropped_total",
			Help: "Audit entries dropped because the worker queue was full",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(RequestsCreated)
		prometheus.MustRegister(StatusTransitions)
		prometheus.MustRegister(WorkflowFailures)
		prometheus.MustRegister(OTPGenerated)
		prometheus.MustRegister(WorkerQueueDepth)
		prometheus.MustRegister(AuditDropped)
	})
}
