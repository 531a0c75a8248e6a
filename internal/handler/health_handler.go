package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger проверяет соединение с зависимостью
type Pinger interface {
	Ping(ctx context.Context) error
}

// EnforcerStatus сообщает, работает ли фоновый сборщик просроченных файлов
type EnforcerStatus interface {
	Running() bool
}

type HealthHandler struct {
	db       Pinger
	backend  string
	enforcer EnforcerStatus
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Storage  string `json:"storage_backend"`
	Enforcer string `json:"enforcer"`
}

func NewHealthHandler(db Pinger, backend string, enforcer EnforcerStatus) *HealthHandler {
	return &HealthHandler{db: db, backend: backend, enforcer: enforcer}
}

// check возвращает снимок состояния и признак готовности
func (h *HealthHandler) check(ctx context.Context) (healthResponse, bool) {
	resp := healthResponse{Status: "ok", Database: "ok", Storage: h.backend, Enforcer: "running"}
	healthy := true

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		resp.Database = err.Error()
		healthy = false
	}
	if h.enforcer != nil && !h.enforcer.Running() {
		resp.Enforcer = "stopped"
		healthy = false
	}
	if !healthy {
		resp.Status = "degraded"
	}
	return resp, healthy
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp, healthy := h.check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
