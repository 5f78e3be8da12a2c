package service

import (
	"context"
	"sync"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchRunner 在后台运行批次，供 HTTP 接口和收件箱监控共用
type BatchRunner struct {
	orch     *BatchOrchestrator
	defaults RunOptions
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
}

// NewBatchRunner 创建后台批次运行器，defaults 提供输出目录、并发数等默认参数
func NewBatchRunner(orch *BatchOrchestrator, defaults RunOptions, log *logger.Logger) *BatchRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchRunner{
		orch:     orch,
		defaults: defaults,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]bool),
	}
}

// Start 在后台启动一个批次，立即返回批次ID
func (r *BatchRunner) Start(specs []model.TaskSpec, tasksFile string) string {
	opts := r.defaults
	opts.BatchID = uuid.NewString()
	opts.TasksFile = tasksFile

	r.mu.Lock()
	r.active[opts.BatchID] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, opts.BatchID)
			r.mu.Unlock()
		}()

		report, err := r.orch.Run(r.ctx, specs, opts)
		if err != nil {
			r.log.WithError(err).Error("批次运行失败", zap.String("batch_id", opts.BatchID))
			return
		}
		r.log.Infof("批次 %s 已结束，报告: %s", opts.BatchID, report.Path)
	}()

	return opts.BatchID
}

// IsActive 批次是否仍在本进程中运行
func (r *BatchRunner) IsActive(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[batchID]
}

// Stop 中断所有运行中的批次并等待报告写出
func (r *BatchRunner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Wait 等待所有批次结束
func (r *BatchRunner) Wait() {
	r.wg.Wait()
}
