package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 단독 실행하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러만 시작 (API 없이)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 후 결과 출력

등록되는 작업:
- lifecycle: 날짜 기반 대회 상태 전이 (LIFECYCLE_SCHEDULE)
- valuation_sync: 포트폴리오 서비스에서 평가 동기화 (PORTFOLIO_BASE_URL 설정 시)
- cache_cleanup: 5분마다 평가 캐시 정리

Example:
  go run ./cmd/arena scheduler list
  go run ./cmd/arena scheduler run lifecycle`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena Scheduler ===")

	rt, err := newRuntime(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.scheduler.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range rt.scheduler.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	rt.scheduler.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()

	stats := rt.scheduler.GetJobStats()

	fmt.Println("Registered jobs:")
	for _, jobName := range rt.scheduler.GetAllJobs() {
		fmt.Printf("  - %-16s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	rt, err := newRuntime(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Printf("Running job: %s\n", jobName)

	result, err := rt.scheduler.RunJobNow(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		fmt.Printf("❌ %s failed after %v: %s\n", jobName, result.Duration, result.Error)
		return fmt.Errorf("job %s failed", jobName)
	}
	fmt.Printf("✅ %s completed in %v\n", jobName, result.Duration)
	return nil
}
