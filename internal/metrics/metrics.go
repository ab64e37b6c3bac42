// Package metrics exposes scan counters and timings in Prometheus form.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cardwatch"

type Metrics struct {
	// Scans: finished runs by outcome (ok, error)
	ScansTotal *prometheus.CounterVec

	// Windows evaluated across all scans
	WindowsScanned prometheus.Counter

	// Flag events raised (an entity exceeding the threshold in one window)
	FlagsRaised prometheus.Counter

	// Distinct entities flagged by the last scan
	EntitiesFlagged prometheus.Gauge

	// Records and entities in the last index
	RecordsIndexed  prometheus.Gauge
	EntitiesIndexed prometheus.Gauge

	// Latency of a full scan
	ScanDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	// Without a registerer the collectors go to a private registry that nothing reads
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ScansTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of detection scans by outcome.",
		}, []string{"status"}),

		WindowsScanned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_scanned_total",
			Help:      "Total number of windows evaluated.",
		}),

		FlagsRaised: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flags_raised_total",
			Help:      "Total number of (window, entity) pairs above the threshold.",
		}),

		EntitiesFlagged: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_flagged",
			Help:      "Distinct entities flagged by the most recent scan.",
		}),

		RecordsIndexed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_indexed",
			Help:      "Transactions indexed by the most recent scan.",
		}),

		EntitiesIndexed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_indexed",
			Help:      "Distinct entity keys indexed by the most recent scan.",
		}),

		ScanDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Histogram of full scan latencies.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
	}
}

// Scan describes a finished scan.
type Scan struct {
	Windows  int
	Flags    int
	Flagged  int
	Records  int
	Entities int
	Elapsed  time.Duration
}

// ObserveScan records a successful scan.
func (m *Metrics) ObserveScan(s Scan) {
	m.ScansTotal.WithLabelValues("ok").Inc()
	m.WindowsScanned.Add(float64(s.Windows))
	m.FlagsRaised.Add(float64(s.Flags))
	m.EntitiesFlagged.Set(float64(s.Flagged))
	m.RecordsIndexed.Set(float64(s.Records))
	m.EntitiesIndexed.Set(float64(s.Entities))
	m.ScanDuration.Observe(s.Elapsed.Seconds())
}

// ObserveFailure records a scan that returned an error.
func (m *Metrics) ObserveFailure() {
	m.ScansTotal.WithLabelValues("error").Inc()
}

// WriteTextfile dumps everything gathered by g to path in the text exposition
// format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
