package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, which is what callers get when metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	storageOps     *prometheus.CounterVec
	storageBytes   *prometheus.CounterVec
	archivesBuilt  *prometheus.CounterVec
	archiveEntries prometheus.Histogram
	binOps         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		storageOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileknight_storage_operations_total",
				Help: "Object storage operations by backend, operation and result",
			},
			[]string{"backend", "operation", "result"},
		),
		storageBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileknight_storage_bytes_total",
				Help: "Bytes moved through object storage",
			},
			[]string{"backend", "direction"},
		),
		archivesBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileknight_downloads_total",
				Help: "Download requests by kind (single file or archive)",
			},
			[]string{"kind"},
		),
		archiveEntries: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fileknight_archive_entries",
				Help:    "Number of entries written per download archive",
				Buckets: []float64{1, 5, 25, 100, 500, 2500},
			},
		),
		binOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileknight_bin_operations_total",
				Help: "Bin operations by kind and item type",
			},
			[]string{"operation", "item"},
		),
	}
}

func (m *Metrics) StorageOp(backend, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storageOps.WithLabelValues(backend, operation, result).Inc()
}

func (m *Metrics) StorageBytes(backend, direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.storageBytes.WithLabelValues(backend, direction).Add(float64(n))
}

func (m *Metrics) Download(kind string, entries int) {
	if m == nil {
		return
	}
	m.archivesBuilt.WithLabelValues(kind).Inc()
	if kind == "archive" {
		m.archiveEntries.Observe(float64(entries))
	}
}

func (m *Metrics) BinOp(operation, item string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.binOps.WithLabelValues(operation, item).Add(float64(count))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	if m == nil {
		return func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNotFound)
		}
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Gatherer is used by tests to read collected values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
