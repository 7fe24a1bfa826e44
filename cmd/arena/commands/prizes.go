package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/arena/internal/prize"
)

// prizesCmd represents the prizes command
var prizesCmd = &cobra.Command{
	Use:   "prizes",
	Short: "상금 분배 계산기",
	Long: `상금 풀과 참가자 수로 순위별 상금을 계산합니다.

분배 규칙:
- 10명 이상: 50% / 30% / 20%
- 5~9명: 70% / 30%
- 1~4명: 100% (winner takes all)

Example:
  go run ./cmd/arena prizes --pool 10000 --participants 12
  go run ./cmd/arena prizes --pool 999.99 --participants 7`,
	RunE: runPrizes,
}

var (
	prizePool         string
	prizeParticipants int
)

func init() {
	rootCmd.AddCommand(prizesCmd)

	prizesCmd.Flags().StringVar(&prizePool, "pool", "", "상금 풀 (decimal)")
	prizesCmd.Flags().IntVar(&prizeParticipants, "participants", 0, "참가자 수")
	prizesCmd.MarkFlagRequired("pool")
	prizesCmd.MarkFlagRequired("participants")
}

func runPrizes(cmd *cobra.Command, args []string) error {
	pool, err := decimal.NewFromString(prizePool)
	if err != nil {
		return fmt.Errorf("invalid --pool %q: %w", prizePool, err)
	}
	if pool.IsNegative() || prizeParticipants < 0 {
		return fmt.Errorf("--pool and --participants must not be negative")
	}

	tiers := prize.Allocate(pool, prizeParticipants)
	if len(tiers) == 0 {
		fmt.Println("No prizes: empty pool or no participants")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tAMOUNT\tDESCRIPTION")
	for _, t := range tiers {
		fmt.Fprintf(w, "%d\t%s\t%s\n", t.Rank, t.PrizeAmount.StringFixed(2), t.Description)
	}
	w.Flush()
	return nil
}
