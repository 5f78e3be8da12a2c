package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"
	"hailuo-batch/app/store"

	"go.uber.org/zap"
)

// ErrMaxRoundsReached 达到配置的最大轮询轮数，仍有任务未结束
var ErrMaxRoundsReached = errors.New("达到最大轮询轮数")

// PollOptions 轮询参数
type PollOptions struct {
	Interval  time.Duration
	MaxRounds int // 0 表示不限制
}

// StatusResult 单个任务的远端状态，查询失败时 Err 非空
type StatusResult struct {
	TaskID string             `json:"task_id"`
	Status model.RemoteStatus `json:"-"`
	FileID string             `json:"file_id,omitempty"`
	Raw    json.RawMessage    `json:"raw,omitempty"`
	Err    error              `json:"-"`
}

// StatusPoller 轮询未结束的任务直到全部进入终态
type StatusPoller struct {
	client    RemoteClient
	store     TaskStore
	artifacts *ArtifactDownloader
	pool      *WorkerPool
	log       *logger.Logger
}

// NewStatusPoller 创建状态轮询器
func NewStatusPoller(client RemoteClient, store TaskStore, artifacts *ArtifactDownloader, pool *WorkerPool, log *logger.Logger) *StatusPoller {
	return &StatusPoller{
		client:    client,
		store:     store,
		artifacts: artifacts,
		pool:      pool,
		log:       log,
	}
}

// Run 按轮询间隔反复查询，直到没有未结束的任务。
// tasks 中的记录会被原地更新；返回执行的轮数。
func (p *StatusPoller) Run(ctx context.Context, tasks []*model.VideoTask, opts PollOptions) (int, error) {
	pending := make([]*model.VideoTask, 0, len(tasks))
	for _, t := range tasks {
		if t.HasTaskID() && !t.IsTerminal() {
			pending = append(pending, t)
		}
	}

	p.log.Infof("开始跟踪任务状态，待完成任务数: %d", len(pending))

	rounds := 0
	for len(pending) > 0 {
		if opts.MaxRounds > 0 && rounds >= opts.MaxRounds {
			p.log.Warnf("已轮询 %d 轮，仍有 %d 个任务未结束", rounds, len(pending))
			return rounds, ErrMaxRoundsReached
		}

		rounds++
		before := len(pending)
		pending = p.Round(ctx, pending)
		p.log.Infof("第 %d 轮状态检查完成: 本轮结束 %d 个，剩余 %d 个", rounds, before-len(pending), len(pending))

		if len(pending) == 0 {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rounds, ctx.Err()
		case <-timer.C:
		}
	}

	return rounds, nil
}

// Round 对每个未结束任务查询一次状态，返回仍未结束的任务
func (p *StatusPoller) Round(ctx context.Context, pending []*model.VideoTask) []*model.VideoTask {
	still := make([]bool, len(pending))
	p.pool.Each(len(pending), func(i int) {
		still[i] = p.pollOne(ctx, pending[i])
	})

	next := pending[:0:0]
	for i, t := range pending {
		if still[i] {
			next = append(next, t)
		}
	}
	return next
}

// pollOne 查询并推进单个任务，返回任务是否仍未结束
func (p *StatusPoller) pollOne(ctx context.Context, task *model.VideoTask) bool {
	if task.IsTerminal() {
		return false
	}

	resp, err := p.client.QueryStatus(ctx, task.TaskID)
	if err != nil {
		p.log.Warnf("检查任务 %s 状态出错: %v", task.TaskID, err)
		return true
	}

	status := model.ParseRemoteStatus(resp.Status)
	switch status.Kind {
	case model.RemoteSuccess:
		if resp.FileID == "" {
			p.log.Warnf("任务 %s 已成功但响应中没有 file_id，下一轮重试", task.TaskID)
			return true
		}

		complete := func(v *model.VideoTask) {
			v.FileID = resp.FileID
			v.Error = ""
			v.ErrorKind = model.ErrorKindNone
		}
		// 在存储锁内确认记录未结束后再下载，持有旧副本的其他轮询方不会重复下载
		downloaded := false
		updated, err := p.store.AdvanceAfter(ctx, task.TaskID, model.TaskStatusCompleted,
			func(v *model.VideoTask) error {
				p.log.Infof("任务 %s 视频生成成功，下载中", task.TaskID)
				if err := p.artifacts.Download(ctx, resp.FileID, v.OutputFile); err != nil {
					return err
				}
				downloaded = true
				return nil
			}, complete)
		if err != nil && !downloaded && !errors.Is(err, store.ErrTerminal) {
			p.log.Warnf("任务 %s 下载失败，下一轮重试: %v", task.TaskID, err)
			return true
		}
		return p.settle(task, model.TaskStatusCompleted, complete, updated, err)

	case model.RemoteFail:
		p.log.Warnf("任务 %s 生成失败: %s", task.TaskID, string(resp.Raw))
		return p.advance(ctx, task, model.TaskStatusFailed, func(v *model.VideoTask) {
			v.SetFailure(model.TaskStatusFailed, model.ErrorKindRemote, []byte(resp.Raw))
		})

	default:
		if task.Status != model.TaskStatusPending {
			p.advance(ctx, task, model.TaskStatusPending, nil)
		}
		return !task.IsTerminal()
	}
}

// advance 写入状态并同步内存记录，返回任务是否仍未结束
func (p *StatusPoller) advance(ctx context.Context, task *model.VideoTask, next model.TaskStatus, apply func(*model.VideoTask)) bool {
	updated, err := p.store.Advance(ctx, task.TaskID, next, apply)
	return p.settle(task, next, apply, updated, err)
}

// settle 按存储写入结果同步内存记录
func (p *StatusPoller) settle(task *model.VideoTask, next model.TaskStatus, apply func(*model.VideoTask), updated *model.VideoTask, err error) bool {
	switch {
	case err == nil:
		*task = *updated
	case errors.Is(err, store.ErrTerminal) && updated != nil:
		// 存储中已是终态，以存储为准
		*task = *updated
	default:
		// 写库失败时内存记录照常推进，避免已下载的视频被重复下载
		p.log.WithError(err).Error("更新任务状态失败", zap.String("task_id", task.TaskID), zap.String("next", string(next)))
		if apply != nil {
			apply(task)
		}
		task.Status = next
		if next.IsTerminal() && task.CompleteTime == nil {
			now := time.Now()
			task.CompleteTime = &now
		}
	}
	return !task.IsTerminal()
}

// QueryStatuses 并发查询任意一组任务的远端状态，不修改存储。
// 每个输入ID都会出现在结果中，查询失败的以 Err 表示。
func (p *StatusPoller) QueryStatuses(ctx context.Context, taskIDs []string) map[string]StatusResult {
	ids := make([]string, 0, len(taskIDs))
	seen := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	results := make([]StatusResult, len(ids))
	p.pool.Each(len(ids), func(i int) {
		result := StatusResult{TaskID: ids[i]}
		resp, err := p.client.QueryStatus(ctx, ids[i])
		if err != nil {
			result.Err = err
		} else {
			result.Status = model.ParseRemoteStatus(resp.Status)
			result.FileID = resp.FileID
			result.Raw = resp.Raw
		}
		results[i] = result
	})

	out := make(map[string]StatusResult, len(results))
	for _, r := range results {
		out[r.TaskID] = r
	}
	return out
}
