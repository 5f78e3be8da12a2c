package server

import (
	"context"
	"fmt"
	"time"

	"hailuo-batch/app/model"

	"go.uber.org/zap"
)

// setupSchedule 注册历史任务清理和遗留任务刷新
func (s *Server) setupSchedule() error {
	schedule := s.Config.Cleanup.Schedule
	if schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.cleanup(context.Background()) }); err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.refreshStale(context.Background()) }); err != nil {
		return fmt.Errorf("注册刷新任务失败: %w", err)
	}
	return nil
}

// cleanup 删除超过保留期的终态任务，保留天数为 0 时不清理该类任务
func (s *Server) cleanup(ctx context.Context) {
	retention := map[model.TaskStatus]int{
		model.TaskStatusCompleted: s.Config.Cleanup.CompletedRetentionDays,
		model.TaskStatusFailed:    s.Config.Cleanup.FailedRetentionDays,
		model.TaskStatusError:     s.Config.Cleanup.FailedRetentionDays,
	}

	for status, days := range retention {
		if days <= 0 {
			continue
		}
		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := s.store.DeleteTerminalBefore(ctx, status, cutoff)
		if err != nil {
			s.Logger.Errorf("清理 %s 任务失败: %v", status, err)
			continue
		}
		if n > 0 {
			s.Logger.Infof("已清理 %d 个 %s 任务（完成于 %s 之前）", n, status, cutoff.Format("2006-01-02"))
		}
	}
}

// refreshStale 对不在本进程运行的批次中遗留的未结束任务执行一轮状态检查
func (s *Server) refreshStale(ctx context.Context) {
	tasks, err := s.store.ListNonTerminal(ctx, "")
	if err != nil {
		s.Logger.Errorf("查询未完成任务失败: %v", err)
		return
	}

	seen := make(map[string]bool)
	for _, t := range tasks {
		if seen[t.BatchID] || s.runner.IsActive(t.BatchID) {
			continue
		}
		seen[t.BatchID] = true

		if _, err := s.orch.RefreshBatch(ctx, t.BatchID, s.Config.Batch.MaxWorkers); err != nil {
			s.Logger.WithError(err).Error("刷新批次失败", zap.String("batch_id", t.BatchID))
		}
	}
}
