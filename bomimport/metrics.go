package bomimport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_import_jobs_total",
			Help: "Finished BOM import jobs by status",
		},
		[]string{"status"},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_import_rows_total",
			Help: "Processed BOM rows by result",
		},
		[]string{"result"},
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bom_import_duration_seconds",
			Help:    "Wall time of BOM import jobs",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
