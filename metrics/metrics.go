package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meter2car"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics are the application metrics. A nil *AppMetrics is valid and
// records nothing.
type AppMetrics struct {
	Frames         *prometheus.CounterVec // labels: result=ok|segment
	Resyncs        prometheus.Counter
	Reads          *prometheus.CounterVec // labels: result=ok|error
	AvailablePower prometheus.Gauge
	Average        *prometheus.GaugeVec   // labels: average=car|available
	Commands       *prometheus.CounterVec // labels: command, result=ok|error
	Iterations     *prometheus.CounterVec // labels: result=ok|error
	ChargerAmpere  prometheus.Gauge
}

// NewAppMetrics registers and returns the application metrics.
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hdlc_frames_total",
			Help:      "HDLC frames read from the meter.",
		}, []string{"result"}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hdlc_resync_bytes_total",
			Help:      "Bytes dropped while resynchronizing on the frame start.",
		}),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_reads_total",
			Help:      "Meter read attempts.",
		}, []string{"result"}),
		AvailablePower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available_power_watts",
			Help:      "Last available power sample, export minus import.",
		}),
		Average: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_power_watts",
			Help:      "Running averages used by the controller.",
		}, []string{"average"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charger_commands_total",
			Help:      "Commands sent to the charger.",
		}, []string{"command", "result"}),
		Iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_iterations_total",
			Help:      "Control loop iterations.",
		}, []string{"result"}),
		ChargerAmpere: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "charger_ampere",
			Help:      "Charging current reported by the charger.",
		}),
	}
	reg.MustRegister(
		m.Frames,
		m.Resyncs,
		m.Reads,
		m.AvailablePower,
		m.Average,
		m.Commands,
		m.Iterations,
		m.ChargerAmpere,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *AppMetrics) Frame(segment bool) {
	if m == nil {
		return
	}
	if segment {
		m.Frames.WithLabelValues("segment").Inc()
		return
	}
	m.Frames.WithLabelValues("ok").Inc()
}

func (m *AppMetrics) Resync() {
	if m == nil {
		return
	}
	m.Resyncs.Inc()
}

func (m *AppMetrics) Read(power int32, err error) {
	if m == nil {
		return
	}
	m.Reads.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.AvailablePower.Set(float64(power))
	}
}

func (m *AppMetrics) SetAverage(name string, v int64) {
	if m == nil {
		return
	}
	m.Average.WithLabelValues(name).Set(float64(v))
}

func (m *AppMetrics) Command(name string, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name, result(err)).Inc()
}

func (m *AppMetrics) Iteration(ampere int, err error) {
	if m == nil {
		return
	}
	m.Iterations.WithLabelValues(result(err)).Inc()
	if ampere >= 0 {
		m.ChargerAmpere.Set(float64(ampere))
	}
}
