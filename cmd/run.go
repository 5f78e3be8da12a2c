package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hailuo-batch/app/model"
	"hailuo-batch/app/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "批量提交视频生成任务并等待完成",
	Long:  "读取任务列表 JSON 文件，并发提交，轮询状态直到全部结束，下载视频并写出 generation_report.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasksFile, _ := cmd.Flags().GetString("tasks-file")
		batchID, _ := cmd.Flags().GetString("batch-id")

		specs, err := model.LoadTaskSpecs(tasksFile)
		if err != nil {
			return err
		}

		a, err := setup(cmd, batchFlags, true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := service.NewBatchOrchestrator(a.client, a.store, a.log)
		report, err := orch.Run(ctx, specs, service.RunOptions{
			BatchID:      batchID,
			TasksFile:    tasksFile,
			OutputDir:    a.cfg.Batch.OutputDir,
			MaxWorkers:   a.cfg.Batch.MaxWorkers,
			PollInterval: a.cfg.Batch.PollInterval(),
			MaxRounds:    a.cfg.Batch.MaxRounds,
		})
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

func printSummary(report *model.BatchReport) {
	fmt.Printf("批次: %s\n", report.BatchID)
	fmt.Printf("成功: %d  失败: %d  错误: %d  未完成: %d\n",
		report.Count(model.TaskStatusCompleted),
		report.Count(model.TaskStatusFailed),
		report.Count(model.TaskStatusError),
		report.Count(model.TaskStatusSubmitted)+report.Count(model.TaskStatusPending))
	fmt.Printf("报告: %s\n", report.Path)
}

func init() {
	runCmd.Flags().String("tasks-file", "", "任务列表 JSON 文件")
	runCmd.Flags().String("batch-id", "", "批次ID，默认自动生成")
	addBatchFlags(runCmd)
	_ = runCmd.MarkFlagRequired("tasks-file")
	rootCmd.AddCommand(runCmd)
}
