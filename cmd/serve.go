package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"fidera/internal/auth"
	"fidera/internal/config"
	"fidera/internal/handler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API, gRPC health and the expiry enforcer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// newVerifier предпочитает JWKS, если он настроен, иначе общий секрет
func newVerifier(ctx context.Context, cfg config.AuthConfig) (*auth.Verifier, error) {
	if cfg.JWKSURL != "" {
		log.Info().Str("url", cfg.JWKSURL).Msg("verifying tokens against JWKS")
		return auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.JWKSRefresh, cfg.JWKSClientTimeout)
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("neither JWKS_URL nor JWT_SECRET is set, only anonymous requests will be accepted")
	}
	return auth.NewVerifier(cfg.JWTSecret), nil
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	a.expiry.Start(context.WithoutCancel(ctx))

	health := handler.NewHealthHandler(a.repo, a.storage.BackendName(), a.expiry)
	router := handler.NewRouter(
		handler.NewFileHandler(a.files, cfg.Server.MaxUploadBytes),
		health,
		verifier,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC сервер отдаёт только стандартный health сервис
	grpcServer := grpc.NewServer()
	monitor := handler.NewHealthMonitor(health)
	monitor.Register(grpcServer)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx, 15*time.Second)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		a.expiry.Stop()
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("port", cfg.Server.GRPCPort).Msg("starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down servers")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopMonitor()
	monitor.Shutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()

	a.expiry.Stop()
	a.files.WaitIndexing()

	log.Info().Msg("server exited properly")
	return runErr
}
