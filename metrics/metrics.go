// Package metrics exports factory state as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

var statuses = []simulator.Status{simulator.StatusRunning, simulator.StatusWarning, simulator.StatusAnomaly}

// Recorder is a runner sink that turns records into metrics. It owns its registry so
// several recorders can live in one process.
type Recorder struct {
	registry *prometheus.Registry

	ticks       *prometheus.CounterVec
	episodes    *prometheus.CounterVec
	status      *prometheus.GaugeVec
	sensorValue *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factory_ticks_total",
			Help: "Records produced per machine.",
		}, []string{"machine"}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factory_anomaly_episodes_total",
			Help: "Anomaly episodes injected per machine and sensor.",
		}, []string{"machine", "sensor"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "factory_machine_status",
			Help: "Current machine status, 1 for the active status and 0 otherwise.",
		}, []string{"machine", "status"}),
		sensorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "factory_sensor_value",
			Help: "Latest reported sensor value.",
		}, []string{"machine", "sensor"}),
	}

	r.registry.MustRegister(r.ticks, r.episodes, r.status, r.sensorValue)
	return r
}

func (r *Recorder) Name() string { return "metrics" }

func (r *Recorder) Publish(_ context.Context, rec simulator.Record) error {
	r.ticks.WithLabelValues(rec.MachineID).Inc()
	for _, s := range statuses {
		v := 0.0
		if s == rec.Status {
			v = 1
		}
		r.status.WithLabelValues(rec.MachineID, string(s)).Set(v)
	}
	for name, v := range rec.Sensors {
		r.sensorValue.WithLabelValues(rec.MachineID, name).Set(v)
	}
	return nil
}

// ObserveEpisode counts an injected episode. It can be used as a machine inject hook.
func (r *Recorder) ObserveEpisode(ep anomaly.Episode) {
	r.episodes.WithLabelValues(ep.MachineID, ep.Sensor).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
