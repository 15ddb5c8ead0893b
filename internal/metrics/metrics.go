// Package metrics contains the Prometheus collectors of the DHCP server.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is the default namespace of the collectors.
const DefaultNamespace = "adguard_dhcp"

// subsystemServer is the subsystem of the server collectors.
const subsystemServer = "server"

// DHCP is the Prometheus implementation of the [dhcpsvc.Metrics] interface.
type DHCP struct {
	// messages is the number of the handled messages by type.
	messages *prometheus.CounterVec

	// duration is the time spent handling the messages by type.
	duration *prometheus.HistogramVec

	// replies is the number of the sent replies by type.
	replies *prometheus.CounterVec

	// dropped is the number of the dropped messages by reason.
	dropped *prometheus.CounterVec

	// quarantined is the number of the quarantined addresses.
	quarantined prometheus.Counter

	// bindings is the current number of the bindings.
	bindings prometheus.Gauge
}

// NewDHCP registers the collectors in reg and returns the metrics.  reg must
// not be nil.
func NewDHCP(namespace string, reg prometheus.Registerer) (m *DHCP, err error) {
	m = &DHCP{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "messages_total",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The number of the handled messages by message type.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "message_duration_seconds",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The time spent handling a message by message type.",
			// From 0.25ms to 2 seconds, the probes take up to a second.
			Buckets: prometheus.ExponentialBuckets(0.00025, 2, 14),
		}, []string{"type"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "replies_total",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The number of the sent replies by message type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "dropped_total",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The number of the messages left without a reply by reason.",
		}, []string{"reason"}),
		quarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "quarantined_total",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The number of the addresses made temporarily unavailable.",
		}),
		bindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "bindings",
			Namespace: namespace,
			Subsystem: subsystemServer,
			Help:      "The current number of the bindings.",
		}),
	}

	collectors := []prometheus.Collector{
		m.messages,
		m.duration,
		m.replies,
		m.dropped,
		m.quarantined,
		m.bindings,
	}

	var errs []error
	for _, c := range collectors {
		errs = append(errs, reg.Register(c))
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("registering dhcp metrics: %w", err)
	}

	return m, nil
}

// type check
var _ dhcpsvc.Metrics = (*DHCP)(nil)

// ObserveMessage implements the [dhcpsvc.Metrics] interface for *DHCP.
func (m *DHCP) ObserveMessage(_ context.Context, typ string, dur time.Duration) {
	m.messages.WithLabelValues(typ).Inc()
	m.duration.WithLabelValues(typ).Observe(dur.Seconds())
}

// IncReplies implements the [dhcpsvc.Metrics] interface for *DHCP.
func (m *DHCP) IncReplies(_ context.Context, typ string) {
	m.replies.WithLabelValues(typ).Inc()
}

// IncDropped implements the [dhcpsvc.Metrics] interface for *DHCP.
func (m *DHCP) IncDropped(_ context.Context, reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// IncQuarantined implements the [dhcpsvc.Metrics] interface for *DHCP.
func (m *DHCP) IncQuarantined(_ context.Context) {
	m.quarantined.Inc()
}

// SetBindings implements the [dhcpsvc.Metrics] interface for *DHCP.
func (m *DHCP) SetBindings(_ context.Context, n int) {
	m.bindings.Set(float64(n))
}
