package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hailuo-batch/app/service"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "继续跟踪已有批次中未结束的任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, _ := cmd.Flags().GetString("batch")

		a, err := setup(cmd, flagBinding{
			"api-key":    "minimax.api_key",
			"max-rounds": "batch.max_rounds",
		}, true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 并发数和轮询间隔未指定时沿用批次创建时的参数
		opts := service.RunOptions{MaxRounds: a.cfg.Batch.MaxRounds}
		if cmd.Flags().Changed("max-workers") {
			opts.MaxWorkers, _ = cmd.Flags().GetInt("max-workers")
		}
		if cmd.Flags().Changed("check-interval") {
			seconds, _ := cmd.Flags().GetInt("check-interval")
			opts.PollInterval = time.Duration(seconds) * time.Second
		}

		report, err := service.NewBatchOrchestrator(a.client, a.store, a.log).Resume(ctx, batchID, opts)
		if report == nil {
			return err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		printSummary(report)
		return nil
	},
}

func init() {
	resumeCmd.Flags().String("batch", "", "批次ID")
	resumeCmd.Flags().String("api-key", "", "MiniMax API 密钥")
	resumeCmd.Flags().Int("max-workers", 0, "最大并发数，默认沿用批次参数")
	resumeCmd.Flags().Int("check-interval", 0, "状态检查间隔（秒），默认沿用批次参数")
	resumeCmd.Flags().Int("max-rounds", 0, "最大轮询轮数，0 表示不限制")
	_ = resumeCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(resumeCmd)
}
