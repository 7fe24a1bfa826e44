package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	storeMode string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Arena - 모의투자 대회 랭킹 엔진",
	Long: `Arena Unified CLI

트레이딩 대회의 등록, 참가자 관리, 점수 계산, 리더보드, 상금 분배를 담당하는 엔진.

Usage:
  go run ./cmd/arena [command]

Examples:
  go run ./cmd/arena api
  go run ./cmd/arena status
  go run ./cmd/arena prizes --pool 10000 --participants 12
  go run ./cmd/arena scheduler list`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeMode, "store", "", "store backend override (postgres|memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
