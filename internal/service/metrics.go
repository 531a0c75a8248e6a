package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidera_stage_total",
		Help: "Stage operations by result",
	}, []string{"result"})

	confirmTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidera_confirm_total",
		Help: "Confirm operations by result",
	}, []string{"result"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidera_file_cache_lookups_total",
		Help: "Stored file record cache lookups by outcome",
	}, []string{"outcome"})

	// purgeRunsTotal считает количество проходов сборщика
	purgeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fidera_purge_runs_total",
		Help: "Expiry enforcer sweeps",
	})

	purgedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fidera_purged_files_total",
		Help: "Files moved to expired by the enforcer",
	})

	purgeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fidera_purge_errors_total",
		Help: "Per-file purge failures, retried on the next sweep",
	})

	purgeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fidera_purge_duration_seconds",
		Help:    "Expiry enforcer sweep duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
