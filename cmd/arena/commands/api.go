package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/arena/internal/api"
	"github.com/wonny/arena/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버와 스케줄러를 시작합니다.

이 명령어는:
- 저장소에서 대회/참가자 복원 후 리더보드 재계산
- HTTP API 서버 시작 (대회, 참가, 리더보드, 상금)
- 웹소켓 리더보드 스트림 제공
- 라이프사이클/평가 동기화 스케줄러 시작
- Prometheus 메트릭 노출 (METRICS_ENABLED)

Endpoints:
  GET  /health
  GET  /api/competitions
  POST /api/competitions
  GET  /api/competitions/{id}/leaderboard
  GET  /api/competitions/{id}/stream
  POST /api/competitions/{id}/valuations

Example:
  go run ./cmd/arena api
  go run ./cmd/arena api --port 8080 --store memory`,
	RunE: runAPIServer,
}

var (
	apiPort        string
	apiNoScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
	apiCmd.Flags().BoolVar(&apiNoScheduler, "no-scheduler", false, "스케줄러 없이 API만 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena API Server ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, log := rt.cfg, rt.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// Metrics
	if cfg.MetricsEnabled {
		go func() {
			if err := rt.metrics.Serve(ctx, cfg.MetricsPort); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Scheduler
	if !apiNoScheduler {
		rt.scheduler.Start()
		defer rt.scheduler.Stop()
	}

	// HTTP
	router := api.NewRouter(
		handlers.NewCompetitionHandler(rt.engine, log),
		handlers.NewStreamHandler(rt.engine, cfg.Competition.FeedInterval, log),
		log,
	)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s (store: %s)\n", cfg.Port, cfg.Store)
	if cfg.MetricsEnabled {
		fmt.Printf("   Metrics on http://localhost:%s/metrics\n", cfg.MetricsPort)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
