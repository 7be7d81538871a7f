package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atrilabs/atri-runtime/pkg/protocol"
)

// Event outcomes recorded in the events_total status label.
const (
	outcomeOK = "ok"
)

// Metrics holds the Prometheus collectors of the runtime. A nil *Metrics
// records nothing.
type Metrics struct {
	factory promauto.Factory
	ns      string

	sessionsActive   prometheus.Gauge
	sessionsDetached prometheus.Gauge
	sessionsTotal    prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	initTotal        *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec
	eventDuration    *prometheus.HistogramVec
	eventsRejected   *prometheus.CounterVec
	eventsDiscarded  prometheus.Counter
	deltaOps         prometheus.Histogram
	messagesSent     *prometheus.CounterVec
	messagesDropped  prometheus.Counter
	reconnectsTotal  prometheus.Counter
	routeReloads     *prometheus.CounterVec
}

// NewMetrics registers the runtime collectors on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,
		ns:      namespace,

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions",
		}),
		sessionsDetached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_detached",
			Help:      "Number of sessions waiting for a reconnect",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions created",
		}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions closed by reason",
		}, []string{"reason"}),
		initTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_total",
			Help:      "Total number of init hook invocations by outcome",
		}, []string{"route", "status"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events processed by outcome",
		}, []string{"route", "status"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Event hook duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		eventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Total number of events rejected at dispatch",
		}, []string{"reason"}),
		eventsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Total number of queued events discarded at teardown",
		}),
		deltaOps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delta_ops",
			Help:      "Number of operations per pushed delta",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages handed to connections",
		}, []string{"type"}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped for detached sessions",
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of session reconnects",
		}),
		routeReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_reloads_total",
			Help:      "Total number of route registry reloads by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) sessionCreated() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionClosed(reason string, discarded int, wasDetached bool) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
	m.eventsDiscarded.Add(float64(discarded))
	if wasDetached {
		m.sessionsDetached.Dec()
	}
}

func (m *Metrics) sessionDetached() {
	if m == nil {
		return
	}
	m.sessionsDetached.Inc()
}

func (m *Metrics) sessionReattached() {
	if m == nil {
		return
	}
	m.sessionsDetached.Dec()
	m.reconnectsTotal.Inc()
}

func (m *Metrics) initDone(route string, err error) {
	if m == nil {
		return
	}
	m.initTotal.WithLabelValues(route, outcome(err)).Inc()
}

func (m *Metrics) eventDone(route string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(route, outcome(err)).Inc()
	m.eventDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) eventRejected(err error) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(string(CodeFor(err))).Inc()
}

func (m *Metrics) deltaPushed(ops int) {
	if m == nil {
		return
	}
	m.deltaOps.Observe(float64(ops))
}

func (m *Metrics) messageSent(t protocol.MessageType) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) messageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

// RouteReload records a registry reload attempt.
func (m *Metrics) RouteReload(err error) {
	if m == nil {
		return
	}
	status := outcomeOK
	if err != nil {
		status = "error"
	}
	m.routeReloads.WithLabelValues(status).Inc()
}

// observePool exports the worker pool occupancy.
func (m *Metrics) observePool(running, capacity func() int) {
	if m == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.ns,
		Name:      "workers_running",
		Help:      "Number of workers processing events",
	}, func() float64 { return float64(running()) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.ns,
		Name:      "workers_capacity",
		Help:      "Worker pool capacity, -1 when unbounded",
	}, func() float64 { return float64(capacity()) })
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return string(CodeFor(err))
}
