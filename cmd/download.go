package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"hailuo-batch/app/service"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "按文件ID批量下载视频",
	RunE: func(cmd *cobra.Command, args []string) error {
		fileIDs, _ := cmd.Flags().GetStringSlice("file-ids")
		if len(fileIDs) == 0 {
			return errors.New("请指定 --file-ids")
		}

		a, err := setup(cmd, flagBinding{
			"api-key":     "minimax.api_key",
			"output-dir":  "batch.output_dir",
			"max-workers": "batch.max_workers",
		}, true)
		if err != nil {
			return err
		}
		defer a.close()

		items := make([]service.DownloadItem, 0, len(fileIDs))
		for _, id := range fileIDs {
			items = append(items, service.DownloadItem{
				FileID: id,
				Dest:   filepath.Join(a.cfg.Batch.OutputDir, fmt.Sprintf("video_%s.mp4", id)),
			})
		}

		orch := service.NewBatchOrchestrator(a.client, a.store, a.log)
		outcomes := orch.Artifacts().DownloadAll(cmd.Context(), service.NewWorkerPool(a.cfg.Batch.MaxWorkers), items)

		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
				fmt.Printf("失败  %s: %v\n", o.FileID, o.Err)
				continue
			}
			fmt.Printf("完成  %s -> %s\n", o.FileID, o.Dest)
		}
		if failed > 0 {
			return fmt.Errorf("%d 个文件下载失败", failed)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringSlice("file-ids", nil, "文件ID列表，逗号分隔")
	downloadCmd.Flags().String("api-key", "", "MiniMax API 密钥")
	downloadCmd.Flags().String("output-dir", "output", "视频输出目录")
	downloadCmd.Flags().Int("max-workers", 3, "最大并发数")
	rootCmd.AddCommand(downloadCmd)
}
