package cmd

import (
	"errors"

	"hailuo-batch/app/service"

	"github.com/spf13/cobra"
)

// statusLine 单个任务的查询结果
type statusLine struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	FileID string `json:"file_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "批量查询任务的远端状态（不修改本地记录）",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskIDs, _ := cmd.Flags().GetStringSlice("task-ids")
		batchID, _ := cmd.Flags().GetString("batch")
		if len(taskIDs) == 0 && batchID == "" {
			return errors.New("请指定 --task-ids 或 --batch")
		}

		a, err := setup(cmd, flagBinding{
			"api-key":     "minimax.api_key",
			"max-workers": "batch.max_workers",
		}, true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if batchID != "" {
			tasks, err := a.store.ListNonTerminal(ctx, batchID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				taskIDs = append(taskIDs, t.TaskID)
			}
		}

		orch := service.NewBatchOrchestrator(a.client, a.store, a.log)
		results := orch.Poller(service.NewWorkerPool(a.cfg.Batch.MaxWorkers)).QueryStatuses(ctx, taskIDs)

		lines := make([]statusLine, 0, len(results))
		seen := make(map[string]bool, len(results))
		for _, id := range taskIDs {
			r, ok := results[id]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true

			line := statusLine{TaskID: id}
			if r.Err != nil {
				line.Error = r.Err.Error()
			} else {
				line.Status = r.Status.String()
				line.FileID = r.FileID
			}
			lines = append(lines, line)
		}
		return printJSON(lines)
	},
}

func init() {
	statusCmd.Flags().StringSlice("task-ids", nil, "任务ID列表，逗号分隔")
	statusCmd.Flags().String("batch", "", "查询批次内全部未结束的任务")
	statusCmd.Flags().String("api-key", "", "MiniMax API 密钥")
	statusCmd.Flags().Int("max-workers", 3, "最大并发数")
	rootCmd.AddCommand(statusCmd)
}
