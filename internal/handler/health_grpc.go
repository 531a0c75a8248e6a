package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Имена сервисов в grpc health
const (
	HealthServiceLifecycle = "fidera.Lifecycle"
	HealthServiceEnforcer  = "fidera.Enforcer"
)

// HealthMonitor публикует состояние базы и сборщика через стандартный grpc health сервис
type HealthMonitor struct {
	checks *HealthHandler
	server *health.Server
}

func NewHealthMonitor(checks *HealthHandler) *HealthMonitor {
	return &HealthMonitor{
		checks: checks,
		server: health.NewServer(),
	}
}

func (m *HealthMonitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Refresh перечитывает состояние и обновляет статусы
func (m *HealthMonitor) Refresh(ctx context.Context) {
	resp, healthy := m.checks.check(ctx)

	m.server.SetServingStatus("", servingStatus(healthy))
	m.server.SetServingStatus(HealthServiceLifecycle, servingStatus(resp.Database == "ok"))
	m.server.SetServingStatus(HealthServiceEnforcer, servingStatus(resp.Enforcer == "running"))
}

// Run обновляет статусы с заданным интервалом до отмены ctx
func (m *HealthMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown переводит все сервисы в NOT_SERVING перед остановкой
func (m *HealthMonitor) Shutdown() {
	log.Info().Msg("grpc health switched to NOT_SERVING")
	m.server.Shutdown()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
