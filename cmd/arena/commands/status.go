package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/store/postgres"
	"github.com/wonny/arena/pkg/config"
	"github.com/wonny/arena/pkg/database"
	"github.com/wonny/arena/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "DB/Redis 연결 및 대회 현황",
	Long: `저장소와 Redis 연결 상태를 점검하고 대회 현황을 표시합니다.

표시 정보:
- PostgreSQL: Ping, 응답 시간, 커넥션 풀 통계
- Redis: 활성화 여부, Ping
- 대회: 상태별 개수와 진행 중인 대회 목록

Example:
  go run ./cmd/arena status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena Status ===")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("ENV: %s | Store: %s\n\n", cfg.Env, cfg.Store)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	healthy := true

	// PostgreSQL
	var store *postgres.Store
	if cfg.Store == config.StorePostgres {
		fmt.Printf("🐘 PostgreSQL (%s)\n", redactURL(cfg.Database.URL))
		db, err := database.New(cfg)
		if err != nil {
			fmt.Printf("   ❌ connect: %v\n\n", err)
			healthy = false
		} else {
			defer db.Close()
			status, err := db.HealthCheck(ctx)
			if err != nil {
				fmt.Printf("   ❌ ping: %v\n\n", err)
				healthy = false
			} else {
				fmt.Printf("   ✅ healthy in %v\n", status.ResponseTime)
				fmt.Printf("   Pool: %d/%d conns (%d idle, %d acquired)\n\n",
					status.Stats.TotalConns, status.Stats.MaxConns, status.Stats.IdleConns, status.Stats.AcquiredConns)
				store = postgres.New(db.Pool)
			}
		}
	} else {
		fmt.Println("🧠 Memory store (nothing to check)")
		fmt.Println()
	}

	// Redis
	fmt.Println("🔴 Redis")
	rc, err := redis.New(cfg)
	switch {
	case err != nil:
		fmt.Printf("   ❌ %v\n\n", err)
		healthy = false
	case !rc.Enabled():
		fmt.Println("   disabled (REDIS_ENABLED=false)")
		fmt.Println()
	default:
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			fmt.Printf("   ❌ ping: %v\n\n", err)
			healthy = false
		} else {
			fmt.Printf("   ✅ %s:%s (prefix %s)\n\n", cfg.Redis.Host, cfg.Redis.Port, rc.Prefix())
		}
	}

	// Competitions
	if store != nil {
		if err := printCompetitions(ctx, store); err != nil {
			fmt.Printf("❌ competitions: %v\n", err)
			healthy = false
		}
	}

	if !healthy {
		return fmt.Errorf("one or more checks failed")
	}
	fmt.Println("✅ All checks passed")
	return nil
}

func printCompetitions(ctx context.Context, store contracts.CompetitionStore) error {
	list, err := store.List(ctx)
	if err != nil {
		return err
	}

	counts := make(map[contracts.Status]int)
	for _, c := range list {
		counts[c.Status]++
	}

	fmt.Println("🏆 Competitions")
	for _, s := range contracts.AllStatuses() {
		fmt.Printf("   %-18s %d\n", s, counts[s])
	}
	fmt.Println()

	if counts[contracts.StatusActive] == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "   ID\tNAME\tPARTICIPANTS\tENDS")
	for _, c := range list {
		if c.Status != contracts.StatusActive {
			continue
		}
		fmt.Fprintf(w, "   %s\t%s\t%d/%d\t%s\n", c.ID, c.Name, c.CurrentParticipants, c.MaxParticipants, c.EndDate.Format(time.RFC3339))
	}
	w.Flush()
	fmt.Println()
	return nil
}

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
