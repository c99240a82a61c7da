package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"rksokd/internal/protocol"
)

const (
	labelOK        = "ok"
	labelNotFound  = "not_found"
	labelIncorrect = "incorrect"
	labelForbidden = "forbidden"

	approvalAllowed     = "allowed"
	approvalDenied      = "denied"
	approvalUnavailable = "unavailable"
	approvalBadReply    = "bad_reply"
)

// Metrics holds the server's instruments. They live on whatever registry
// the caller passes, normally the dedicated one the debug server exposes.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	ResponsesTotal    *prometheus.CounterVec
	ApprovalsTotal    *prometheus.CounterVec
	RequestSeconds    prometheus.Histogram
}

// NewMetrics builds the instrument set and registers it on reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Connections currently being served.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Parsed requests by verb.",
		}, []string{"verb"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Responses sent by status.",
		}, []string{"status"}),
		ApprovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "approvals_total",
			Help:      "Validation server exchanges by outcome.",
		}, []string{"outcome"}),
		RequestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rksok",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time from accept to response.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ConnectionsTotal,
			m.ConnectionsActive,
			m.RequestsTotal,
			m.ResponsesTotal,
			m.ApprovalsTotal,
			m.RequestSeconds,
		)
	}
	return m
}

func verbLabel(v protocol.Verb) string {
	switch v {
	case protocol.VerbGet:
		return "get"
	case protocol.VerbWrite:
		return "write"
	case protocol.VerbDelete:
		return "delete"
	}
	return "unknown"
}

func statusLabel(st protocol.Status) string {
	switch st {
	case protocol.StatusOK:
		return labelOK
	case protocol.StatusNotFound:
		return labelNotFound
	case protocol.StatusIncorrect:
		return labelIncorrect
	case protocol.StatusForbidden:
		return labelForbidden
	}
	return "unknown"
}
