// Package metrics exposes Prometheus instrumentation for the sensor
// framework. A nil *Set is valid and records nothing, so callers do not have
// to guard every observation site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Set struct {
	registrations        prometheus.Counter
	registrationFailures prometheus.Counter
	registeredSensors    prometheus.Gauge
	samples              *prometheus.CounterVec
	sampleFailures       prometheus.Counter
	configRelays         prometheus.Counter
	configFailures       prometheus.Counter
}

// New builds the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_registrations_total",
			Help: "Sensors successfully registered to the framework.",
		}),
		registrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_registration_failures_total",
			Help: "Registration attempts rejected by the framework.",
		}),
		registeredSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_registered_sensors",
			Help: "Currently registered sensor handlers.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_samples_total",
			Help: "Samples pushed to the hub, by value kind.",
		}, []string{"kind"}),
		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_sample_failures_total",
			Help: "Sample callbacks that failed or produced oversized values.",
		}),
		configRelays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_config_relays_total",
			Help: "Hub-side configuration updates relayed to plugins.",
		}),
		configFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_config_failures_total",
			Help: "Configuration callbacks that returned an error.",
		}),
	}
	reg.MustRegister(
		s.registrations,
		s.registrationFailures,
		s.registeredSensors,
		s.samples,
		s.sampleFailures,
		s.configRelays,
		s.configFailures,
	)
	return s
}

func (s *Set) Registered() {
	if s == nil {
		return
	}
	s.registrations.Inc()
	s.registeredSensors.Inc()
}

func (s *Set) RegistrationFailed() {
	if s == nil {
		return
	}
	s.registrationFailures.Inc()
}

func (s *Set) Sampled(kind string) {
	if s == nil {
		return
	}
	s.samples.WithLabelValues(kind).Inc()
}

func (s *Set) SampleFailed() {
	if s == nil {
		return
	}
	s.sampleFailures.Inc()
}

func (s *Set) ConfigRelayed() {
	if s == nil {
		return
	}
	s.configRelays.Inc()
}

func (s *Set) ConfigFailed() {
	if s == nil {
		return
	}
	s.configFailures.Inc()
}
