package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsDesc = prometheus.NewDesc(
		"backlinks_runs",
		"Number of backlink runs by status",
		[]string{"status"},
		nil,
	)

	providerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backlinks_provider_requests_total",
		Help: "Provider HTTP requests by provider, operation and outcome",
	}, []string{"provider", "operation", "outcome"})

	providerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backlinks_provider_retries_total",
		Help: "Provider request retries after a rate limit or timeout",
	}, []string{"provider", "operation"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backlinks_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs by outcome",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900, 1800},
	}, []string{"outcome"})

	backlinksIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backlinks_ingested_total",
		Help: "Backlink rows inserted by the pipeline",
	})
)

// RunCounter reports how many runs exist in each status.
type RunCounter interface {
	CountRunsByStatus(ctx context.Context) (map[string]int64, error)
}

// RunCollector is a custom Prometheus collector that reads run counts from
// the database on each scrape.
type RunCollector struct {
	counter RunCounter
}

// Describe sends the metric descriptor to the channel.
func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- runsDesc
}

// Collect queries the database for run counts and emits them as gauges.
func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.counter.CountRunsByStatus(ctx)
	if err != nil {
		slog.Error("failed to collect run metrics", "error", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(runsDesc, prometheus.GaugeValue, float64(n), status)
	}
}

var initOnce sync.Once

// Init registers all collectors with the default registry.
// Must be called once at startup.
func Init(counter RunCounter) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			&RunCollector{counter: counter},
			providerRequests,
			providerRetries,
			runDuration,
			backlinksIngested,
		)
	})
}

// RecordProviderRequest counts one provider request attempt.
func RecordProviderRequest(provider, operation, outcome string) {
	providerRequests.WithLabelValues(provider, operation, outcome).Inc()
}

// RecordProviderRetry counts one retry of a provider request.
func RecordProviderRetry(provider, operation string) {
	providerRetries.WithLabelValues(provider, operation).Inc()
}

// ObserveRun records how long a run took and how it ended.
func ObserveRun(outcome string, d time.Duration) {
	runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddBacklinksIngested adds n inserted backlink rows.
func AddBacklinksIngested(n int64) {
	if n > 0 {
		backlinksIngested.Add(float64(n))
	}
}
