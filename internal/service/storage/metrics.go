package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storageOperationsTotal считает операции с хранилищем по бэкенду, типу и результату
	storageOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidera_storage_operations_total",
		Help: "Storage tier operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	// storageBackendInfo отмечает выбранный при старте бэкенд, значение всегда 1
	storageBackendInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fidera_storage_backend_info",
		Help: "Storage backend selected at startup",
	}, []string{"backend"})
)

func observe(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storageOperationsTotal.WithLabelValues(backend, op, result).Inc()
}
