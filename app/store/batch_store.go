package store

import (
	"context"
	"fmt"
	"time"

	"hailuo-batch/app/model"
)

// CreateBatch 记录一次批量运行
func (s *TaskStore) CreateBatch(ctx context.Context, batch *model.VideoBatch) error {
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("写入批次记录失败: %w", err)
	}
	return nil
}

// FinishBatch 写入批次报告路径与结束时间
func (s *TaskStore) FinishBatch(ctx context.Context, batchID, reportPath string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.VideoBatch{}).
		Where("batch_id = ?", batchID).
		Updates(map[string]any{"report_path": reportPath, "finished_at": &now}).Error
	if err != nil {
		return fmt.Errorf("更新批次记录失败: %w", err)
	}
	return nil
}

// GetBatch 读取批次记录
func (s *TaskStore) GetBatch(ctx context.Context, batchID string) (*model.VideoBatch, error) {
	var batches []model.VideoBatch
	if err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Limit(1).Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("查询批次记录失败: %w", err)
	}
	if len(batches) == 0 {
		return nil, ErrNotFound
	}
	return &batches[0], nil
}

// ListBatches 按创建时间倒序列出批次
func (s *TaskStore) ListBatches(ctx context.Context, limit, offset int) ([]model.VideoBatch, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.VideoBatch{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []model.VideoBatch
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}
