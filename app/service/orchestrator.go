package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"

	"github.com/google/uuid"
)

// RunOptions 一次批量运行的参数
type RunOptions struct {
	BatchID      string // 为空时自动生成
	TasksFile    string
	OutputDir    string
	MaxWorkers   int
	PollInterval time.Duration
	MaxRounds    int // 0 表示不限制
}

// BatchOrchestrator 串联校验、提交、轮询、下载和报告
type BatchOrchestrator struct {
	client RemoteClient
	store  TaskStore
	log    *logger.Logger
}

// NewBatchOrchestrator 创建批次编排器
func NewBatchOrchestrator(client RemoteClient, store TaskStore, log *logger.Logger) *BatchOrchestrator {
	return &BatchOrchestrator{client: client, store: store, log: log}
}

// Run 执行一个批次并写出报告。
// 单个任务的失败只记录在报告中；只有输出目录、存储写入和报告写入失败才返回错误。
// ctx 取消时轮询提前结束，报告照常写出，返回值同时带有 ctx 的错误。
func (o *BatchOrchestrator) Run(ctx context.Context, specs []model.TaskSpec, opts RunOptions) (*model.BatchReport, error) {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	if opts.BatchID == "" {
		opts.BatchID = uuid.NewString()
	}

	batch := &model.VideoBatch{
		BatchID:       opts.BatchID,
		TasksFile:     opts.TasksFile,
		OutputDir:     opts.OutputDir,
		MaxWorkers:    opts.MaxWorkers,
		CheckInterval: int(opts.PollInterval / time.Second),
		TaskCount:     len(specs),
	}
	if err := o.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	log := o.log.Named("batch")
	log.Infof("批次 %s 开始，任务数: %d, 输出目录: %s", opts.BatchID, len(specs), opts.OutputDir)

	tasks := make([]*model.VideoTask, len(specs))
	var rejected []*model.VideoTask
	var valid []IndexedSpec
	for i, spec := range specs {
		item := IndexedSpec{Index: i, Spec: spec}
		if err := spec.Validate(); err != nil {
			log.Warnf("任务 %d 参数不合法，跳过提交: %v", i+1, err)
			task := NewTaskRecord(opts.BatchID, item)
			task.SetFailure(model.TaskStatusFailed, model.ErrorKindPrecondition, err)
			now := time.Now()
			task.CompleteTime = &now
			tasks[i] = task
			rejected = append(rejected, task)
			continue
		}
		valid = append(valid, item)
	}

	if err := o.store.Insert(ctx, rejected); err != nil {
		return nil, err
	}

	pool := NewWorkerPool(opts.MaxWorkers)
	submitted, err := NewSubmitter(o.client, o.store, pool, log).Submit(ctx, opts.BatchID, opts.OutputDir, valid)
	if err != nil {
		return nil, err
	}
	for i, task := range submitted {
		tasks[valid[i].Index] = task
	}

	pollErr := o.poll(ctx, log, pool, tasks, opts)

	report, err := o.finish(context.WithoutCancel(ctx), opts.BatchID, opts.OutputDir, tasks)
	if err != nil {
		return nil, err
	}
	return report, pollErr
}

// Resume 从存储中恢复批次，继续轮询未结束的任务并重写报告
func (o *BatchOrchestrator) Resume(ctx context.Context, batchID string, opts RunOptions) (*model.BatchReport, error) {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("读取批次 %s 失败: %w", batchID, err)
	}

	records, err := o.store.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = batch.MaxWorkers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Duration(batch.CheckInterval) * time.Second
	}

	tasks := make([]*model.VideoTask, len(records))
	for i := range records {
		tasks[i] = &records[i]
	}

	log := o.log.Named("batch")
	log.Infof("恢复批次 %s，任务数: %d", batchID, len(tasks))

	pollErr := o.poll(ctx, log, NewWorkerPool(opts.MaxWorkers), tasks, opts)

	report, err := o.finish(context.WithoutCancel(ctx), batchID, batch.OutputDir, tasks)
	if err != nil {
		return nil, err
	}
	return report, pollErr
}

// RefreshBatch 对批次内未结束的任务执行一轮状态检查，返回批次全部任务
func (o *BatchOrchestrator) RefreshBatch(ctx context.Context, batchID string, maxWorkers int) ([]model.VideoTask, error) {
	records, err := o.store.ListNonTerminal(ctx, batchID)
	if err != nil {
		return nil, err
	}

	pending := make([]*model.VideoTask, len(records))
	for i := range records {
		pending[i] = &records[i]
	}

	pool := NewWorkerPool(maxWorkers)
	remaining := o.newPoller(pool, o.log.Named("refresh")).Round(ctx, pending)
	o.log.Infof("批次 %s 刷新完成: 检查 %d 个，仍未结束 %d 个", batchID, len(pending), len(remaining))

	return o.store.ListByBatch(ctx, batchID)
}

// Poller 返回使用给定并发池的状态轮询器
func (o *BatchOrchestrator) Poller(pool *WorkerPool) *StatusPoller {
	return o.newPoller(pool, o.log.Named("status"))
}

// Artifacts 返回视频下载器
func (o *BatchOrchestrator) Artifacts() *ArtifactDownloader {
	return NewArtifactDownloader(o.client, o.log.Named("download"))
}

func (o *BatchOrchestrator) newPoller(pool *WorkerPool, log *logger.Logger) *StatusPoller {
	return NewStatusPoller(o.client, o.store, NewArtifactDownloader(o.client, log), pool, log)
}

func (o *BatchOrchestrator) poll(ctx context.Context, log *logger.Logger, pool *WorkerPool, tasks []*model.VideoTask, opts RunOptions) error {
	rounds, err := o.newPoller(pool, log).Run(ctx, tasks, PollOptions{
		Interval:  opts.PollInterval,
		MaxRounds: opts.MaxRounds,
	})
	switch {
	case err == nil:
		log.Infof("全部任务已结束，共轮询 %d 轮", rounds)
		return nil
	case errors.Is(err, ErrMaxRoundsReached):
		log.Warnf("轮询 %d 轮后停止，未结束的任务保留原状态", rounds)
		return nil
	default:
		log.Warnf("轮询被中断: %v", err)
		return err
	}
}

func (o *BatchOrchestrator) finish(ctx context.Context, batchID, outputDir string, tasks []*model.VideoTask) (*model.BatchReport, error) {
	report := &model.BatchReport{
		BatchID:   batchID,
		OutputDir: outputDir,
		Tasks:     make([]model.VideoTask, 0, len(tasks)),
	}
	for _, t := range tasks {
		report.Tasks = append(report.Tasks, *t)
	}

	path, err := WriteReport(report)
	if err != nil {
		return nil, err
	}

	if err := o.store.FinishBatch(ctx, batchID, path); err != nil {
		o.log.Errorf("更新批次 %s 结束信息失败: %v", batchID, err)
	}

	o.log.Infof("批次 %s 完成: 成功 %d, 失败 %d, 错误 %d, 未完成 %d, 报告: %s",
		batchID,
		report.Count(model.TaskStatusCompleted),
		report.Count(model.TaskStatusFailed),
		report.Count(model.TaskStatusError),
		report.Count(model.TaskStatusSubmitted)+report.Count(model.TaskStatusPending),
		path)
	return report, nil
}
