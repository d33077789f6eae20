package irrigkit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	controlApplied        = "applied"
	controlUnknownTopic   = "unknown_topic"
	controlInvalidPayload = "invalid_payload"
)

// Metrics groups the controller's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	scans          prometheus.Counter
	forwarded      prometheus.Counter
	dropped        prometheus.Counter
	controls       *prometheus.CounterVec
	flushes        prometheus.Counter
	flushErrors    prometheus.Counter
	channelState   *prometheus.GaugeVec
	lastLatchValue prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "scans_total",
			Help:      "Completed scans over all multiplexer channels.",
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "readings_forwarded_total",
			Help:      "Readings passed to the reporting sinks.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "readings_dropped_total",
			Help:      "Readings dropped because soil and nutrient were both zero.",
		}),
		controls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "control_messages_total",
			Help:      "Inbound control messages by result.",
		}, []string{"result"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "latch_flushes_total",
			Help:      "Shift register updates.",
		}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigkit",
			Name:      "latch_flush_errors_total",
			Help:      "Shift register updates that failed.",
		}),
		channelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "irrigkit",
			Name:      "channel_state",
			Help:      "Stored channel state (1 = actuator idle, active low).",
		}, []string{"channel"}),
		lastLatchValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irrigkit",
			Name:      "latch_value",
			Help:      "Last byte shifted into the register.",
		}),
	}

	m.Registry.MustRegister(m.scans, m.forwarded, m.dropped, m.controls, m.flushes, m.flushErrors, m.channelState, m.lastLatchValue)
	return m
}

func (m *Metrics) scanDone() {
	if m != nil {
		m.scans.Inc()
	}
}

func (m *Metrics) readingForwarded() {
	if m != nil {
		m.forwarded.Inc()
	}
}

func (m *Metrics) readingDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) control(result string) {
	if m != nil {
		m.controls.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) flushed(packed byte, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushErrors.Inc()
		return
	}
	m.flushes.Inc()
	m.lastLatchValue.Set(float64(packed))
}

func (m *Metrics) states(channels []Channel) {
	if m == nil {
		return
	}
	for _, ch := range channels {
		value := 0.0
		if ch.State {
			value = 1
		}
		m.channelState.WithLabelValues(strconv.Itoa(ch.Index)).Set(value)
	}
}
