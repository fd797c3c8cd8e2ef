// Package metrics exports the outcome of the last run in the node_exporter
// textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

const namespace = "windscribe_port_sync"

var statuses = []stage.Status{stage.StatusSuccess, stage.StatusSkipped, stage.StatusFailed}

// Run is what gets exported about a finished run.
type Run struct {
	Success    bool
	ExitCode   int
	Port       int
	Duration   time.Duration
	FinishedAt time.Time
	Stages     []stage.Result
}

// Textfile writes run metrics to a file for the node_exporter textfile
// collector.
type Textfile struct {
	path     string
	registry *prometheus.Registry

	lastRun      prometheus.Gauge
	success      prometheus.Gauge
	exitCode     prometheus.Gauge
	port         prometheus.Gauge
	duration     prometheus.Gauge
	stageStatus  *prometheus.GaugeVec
	stageSeconds *prometheus.GaugeVec
}

// NewTextfile creates a Textfile writing to path.
func NewTextfile(path string) *Textfile {
	t := &Textfile{
		path:     path,
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_exit_code",
			Help:      "Exit code of the last run.",
		}),
		port: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forwarded_port",
			Help:      "Port obtained by the last run, 0 if none.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		stageStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_status",
			Help:      "1 for the status each stage ended in during the last run.",
		}, []string{"stage", "status"}),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each stage during the last run.",
		}, []string{"stage"}),
	}

	t.registry.MustRegister(t.lastRun, t.success, t.exitCode, t.port, t.duration, t.stageStatus, t.stageSeconds)
	return t
}

// Write records run and atomically replaces the textfile.
func (t *Textfile) Write(run Run) error {
	t.lastRun.Set(float64(run.FinishedAt.Unix()))
	t.exitCode.Set(float64(run.ExitCode))
	t.port.Set(float64(run.Port))
	t.duration.Set(run.Duration.Seconds())
	if run.Success {
		t.success.Set(1)
	} else {
		t.success.Set(0)
	}

	t.stageStatus.Reset()
	t.stageSeconds.Reset()
	for _, r := range run.Stages {
		for _, s := range statuses {
			v := 0.0
			if r.Status == s {
				v = 1
			}
			t.stageStatus.WithLabelValues(string(r.Stage), string(s)).Set(v)
		}
		t.stageSeconds.WithLabelValues(string(r.Stage)).Set(r.Duration.Seconds())
	}

	if err := prometheus.WriteToTextfile(t.path, t.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
