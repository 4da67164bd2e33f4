package softap

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "softapd"

// Metrics exports supervisor activity to Prometheus. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	privateCommands *prometheus.CounterVec
	running         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "SoftAP operations by result code.",
		}, []string{"operation", "code"}),
		privateCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "private_commands_total",
			Help:      "Private driver commands dispatched, by result.",
		}, []string{"command", "result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ap_running",
			Help:      "Whether the access point is running.",
		}),
	}
	reg.MustRegister(m.operations, m.privateCommands, m.running)
	return m
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, strconv.Itoa(int(Code(err)))).Inc()
}

// ObservePrivateCommand counts a private command dispatch. It matches
// wext.Observer.
func (m *Metrics) ObservePrivateCommand(command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.privateCommands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) setRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}
