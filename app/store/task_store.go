package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hailuo-batch/app/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 任务记录不存在
	ErrNotFound = errors.New("任务记录不存在")
	// ErrTerminal 任务已处于终态，拒绝任何后续状态写入
	ErrTerminal = errors.New("任务已处于终态")
)

// TaskStore 基于 gorm 的任务记录存储。
// 同一个远端任务ID的读改写在进程内串行执行。
type TaskStore struct {
	db    *gorm.DB
	locks sync.Map // taskID -> *sync.Mutex
}

// NewTaskStore 创建任务记录存储
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) lockFor(taskID string) *sync.Mutex {
	if m, ok := s.locks.Load(taskID); ok {
		return m.(*sync.Mutex)
	}
	m, _ := s.locks.LoadOrStore(taskID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Insert 批量写入新任务记录，写入后 ID 字段被回填
func (s *TaskStore) Insert(ctx context.Context, tasks []*model.VideoTask) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(tasks).Error; err != nil {
		return fmt.Errorf("写入任务记录失败: %w", err)
	}
	return nil
}

// Get 按远端任务ID读取记录
func (s *TaskStore) Get(ctx context.Context, taskID string) (*model.VideoTask, error) {
	if taskID == "" {
		return nil, ErrNotFound
	}

	var tasks []model.VideoTask
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id DESC").Limit(1).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务记录失败: %w", err)
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return &tasks[0], nil
}

// Advance 将任务推进到 next 状态。
// apply 在同一把锁内修改记录的其他字段；已是终态的记录返回 ErrTerminal 且不做任何写入。
// 首次进入终态时写入完成时间，输出路径一经分配不再改变。
func (s *TaskStore) Advance(ctx context.Context, taskID string, next model.TaskStatus, apply func(*model.VideoTask)) (*model.VideoTask, error) {
	return s.AdvanceAfter(ctx, taskID, next, nil, apply)
}

// AdvanceAfter 与 Advance 相同，但先在锁内重新读取记录并执行 prepare。
// 记录已是终态时 prepare 不会执行；prepare 返回错误时不做任何写入。
// 同一任务的视频下载放在 prepare 中，保证进程内至多下载一次。
func (s *TaskStore) AdvanceAfter(ctx context.Context, taskID string, next model.TaskStatus, prepare func(*model.VideoTask) error, apply func(*model.VideoTask)) (*model.VideoTask, error) {
	mu := s.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.Status.CanAdvanceTo(next) {
		if task.IsTerminal() {
			s.locks.Delete(taskID)
		}
		return task, fmt.Errorf("%w: task_id=%s, status=%s, next=%s", ErrTerminal, taskID, task.Status, next)
	}

	if prepare != nil {
		if err := prepare(task); err != nil {
			return nil, err
		}
	}

	outputFile := task.OutputFile
	completeTime := task.CompleteTime

	if apply != nil {
		apply(task)
	}
	task.Status = next

	if outputFile != "" {
		task.OutputFile = outputFile
	}
	task.CompleteTime = completeTime
	if next.IsTerminal() {
		now := time.Now()
		task.CompleteTime = &now
	}

	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, fmt.Errorf("更新任务记录失败: %w", err)
	}
	if next.IsTerminal() {
		// 终态不可离开，之后的写入都会在读取后被拒绝，锁可以回收
		s.locks.Delete(taskID)
	}
	return task, nil
}

// ListByBatch 按输入顺序返回批次内全部任务
func (s *TaskStore) ListByBatch(ctx context.Context, batchID string) ([]model.VideoTask, error) {
	var tasks []model.VideoTask
	if err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("task_index ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询批次任务失败: %w", err)
	}
	return tasks, nil
}

// ListNonTerminal 返回拥有远端任务ID且尚未结束的任务，batchID 为空时不限批次
func (s *TaskStore) ListNonTerminal(ctx context.Context, batchID string) ([]model.VideoTask, error) {
	query := s.db.WithContext(ctx).
		Where("task_id <> ''").
		Where("status IN ?", []model.TaskStatus{model.TaskStatusSubmitted, model.TaskStatusPending})
	if batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}

	var tasks []model.VideoTask
	if err := query.Order("batch_id ASC, task_index ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询未完成任务失败: %w", err)
	}
	return tasks, nil
}

// DeleteTerminalBefore 删除指定终态且完成时间早于 cutoff 的任务
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, status model.TaskStatus, cutoff time.Time) (int64, error) {
	if !status.IsTerminal() {
		return 0, fmt.Errorf("只能清理终态任务: %s", status)
	}
	result := s.db.WithContext(ctx).
		Where("status = ? AND complete_time < ?", status, cutoff).
		Delete(&model.VideoTask{})
	return result.RowsAffected, result.Error
}
