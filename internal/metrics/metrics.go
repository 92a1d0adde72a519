package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "zonesync"

// Result labels for the runs counter.
const (
	ResultUpToDate = "up_to_date"
	ResultDeployed = "deployed"
	ResultFailed   = "failed"
)

// Run is the summary of one sync run.
type Run struct {
	// Result is one of the Result* labels.
	Result string
	// Upstream is the latest published version. Zero keeps the previous value.
	Upstream uint64
	// Cached is the newest verified version in the cache after the run.
	Cached uint64
	// Deployed is the live version after the run, zero when unknown.
	Deployed uint64
	// FailedChecks counts files that failed verification.
	FailedChecks int
	// Duration is the wall time of the run.
	Duration time.Duration
	// FinishedAt is when the run ended.
	FinishedAt time.Time
}

// Collector owns a private registry with the sync metrics.
type Collector struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	upstream     prometheus.Gauge
	cached       prometheus.Gauge
	deployed     prometheus.Gauge
	failedChecks prometheus.Gauge
	duration     prometheus.Gauge
	lastRun      prometheus.Gauge
}

// New registers the sync metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by result.",
		}, []string{"result"}),
		upstream: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_version",
			Help:      "Latest release version published upstream.",
		}),
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_version",
			Help:      "Newest verified release version in the local cache.",
		}),
		deployed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployed_version",
			Help:      "Release version currently linked into the live directory.",
		}),
		failedChecks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "verification_failed_files",
			Help:      "Files that failed verification in the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	c.registry.MustRegister(c.runs, c.upstream, c.cached, c.deployed, c.failedChecks, c.duration, c.lastRun)

	for _, result := range []string{ResultUpToDate, ResultDeployed, ResultFailed} {
		c.runs.WithLabelValues(result)
	}

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records a finished run.
func (c *Collector) Observe(run *Run) {
	c.runs.WithLabelValues(run.Result).Inc()

	if run.Upstream != 0 {
		c.upstream.Set(float64(run.Upstream))
	}

	c.cached.Set(float64(run.Cached))
	c.deployed.Set(float64(run.Deployed))
	c.failedChecks.Set(float64(run.FailedChecks))
	c.duration.Set(run.Duration.Seconds())

	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	c.lastRun.Set(float64(finishedAt.Unix()))
}

// Restore seeds the run counters and the upstream gauge from a textfile
// written by an earlier run, so totals keep growing across invocations.
// A missing file leaves the collector untouched.
func (c *Collector) Restore(path string) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("open metrics textfile: %w", err)
	}

	defer file.Close()

	var parser expfmt.TextParser

	families, err := parser.TextToMetricFamilies(file)
	if err != nil {
		return fmt.Errorf("parse metrics textfile: %w", err)
	}

	if family, ok := families[namespace+"_runs_total"]; ok {
		for _, metric := range family.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value <= 0 {
				continue
			}

			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" {
					c.runs.WithLabelValues(label.GetValue()).Add(value)
				}
			}
		}
	}

	if family, ok := families[namespace+"_upstream_version"]; ok && len(family.GetMetric()) > 0 {
		c.upstream.Set(family.GetMetric()[0].GetGauge().GetValue())
	}

	return nil
}

// WriteTextfile writes the registry in text exposition format. The file is
// replaced atomically, so the collector never scrapes a partial file.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
