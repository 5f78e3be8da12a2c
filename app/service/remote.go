package service

import (
	"context"

	"hailuo-batch/app/model"
	"hailuo-batch/app/utils/minimax"
)

// RemoteClient 远端视频生成接口的三个操作
type RemoteClient interface {
	Submit(ctx context.Context, req minimax.SubmitRequest) (*minimax.SubmitResponse, error)
	QueryStatus(ctx context.Context, taskID string) (*minimax.StatusResponse, error)
	RetrieveFile(ctx context.Context, fileID string) (string, error)
}

// TaskStore 任务记录存储
type TaskStore interface {
	Insert(ctx context.Context, tasks []*model.VideoTask) error
	Advance(ctx context.Context, taskID string, next model.TaskStatus, apply func(*model.VideoTask)) (*model.VideoTask, error)
	AdvanceAfter(ctx context.Context, taskID string, next model.TaskStatus, prepare func(*model.VideoTask) error, apply func(*model.VideoTask)) (*model.VideoTask, error)
	ListByBatch(ctx context.Context, batchID string) ([]model.VideoTask, error)
	ListNonTerminal(ctx context.Context, batchID string) ([]model.VideoTask, error)
	CreateBatch(ctx context.Context, batch *model.VideoBatch) error
	FinishBatch(ctx context.Context, batchID, reportPath string) error
	GetBatch(ctx context.Context, batchID string) (*model.VideoBatch, error)
}
