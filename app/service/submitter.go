package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"
	"hailuo-batch/app/utils/minimax"
)

// IndexedSpec 带原始输入序号的任务参数
type IndexedSpec struct {
	Index int
	Spec  model.TaskSpec
}

// Submitter 并发提交视频生成任务
type Submitter struct {
	client RemoteClient
	store  TaskStore
	pool   *WorkerPool
	log    *logger.Logger
}

// NewSubmitter 创建提交器
func NewSubmitter(client RemoteClient, store TaskStore, pool *WorkerPool, log *logger.Logger) *Submitter {
	return &Submitter{client: client, store: store, pool: pool, log: log}
}

// Submit 提交全部任务，返回的记录与 items 一一对应（按输入位置，不按完成顺序）。
// 单个任务失败只体现在对应记录上；返回前所有记录都已写入存储。
func (s *Submitter) Submit(ctx context.Context, batchID, outputDir string, items []IndexedSpec) ([]*model.VideoTask, error) {
	tasks := make([]*model.VideoTask, len(items))

	s.log.Infof("提交 %d 个视频生成任务，最大并发数: %d", len(items), s.pool.Size())

	s.pool.Each(len(items), func(i int) {
		tasks[i] = s.submitOne(ctx, batchID, outputDir, items[i])
	})

	if err := s.store.Insert(ctx, tasks); err != nil {
		return tasks, err
	}
	return tasks, nil
}

func (s *Submitter) submitOne(ctx context.Context, batchID, outputDir string, item IndexedSpec) *model.VideoTask {
	task := NewTaskRecord(batchID, item)

	req, err := BuildSubmitRequest(item.Spec)
	if err != nil {
		s.log.Errorf("任务 %d 构造请求失败: %v", item.Index+1, err)
		task.SetFailure(model.TaskStatusError, model.ErrorKindPrecondition, err)
		return task
	}

	resp, err := s.client.Submit(ctx, req)
	if err != nil {
		s.log.Errorf("任务 %d 提交出错: %v", item.Index+1, err)
		task.SetFailure(model.TaskStatusError, model.ErrorKindTransport, err)
		return task
	}

	if resp.TaskID == "" {
		s.log.Warnf("任务 %d 提交失败: %s", item.Index+1, string(resp.Raw))
		var detail any = []byte(resp.Raw)
		if len(resp.Raw) == 0 {
			detail = "响应中没有 task_id"
		}
		task.SetFailure(model.TaskStatusFailed, model.ErrorKindSubmission, detail)
		return task
	}

	task.TaskID = resp.TaskID
	task.Status = model.TaskStatusSubmitted
	task.OutputFile = OutputPath(outputDir, item.Index, resp.TaskID)
	s.log.Infof("任务 %d 已提交，任务ID: %s", item.Index+1, resp.TaskID)
	return task
}

// NewTaskRecord 根据输入参数创建初始记录
func NewTaskRecord(batchID string, item IndexedSpec) *model.VideoTask {
	return &model.VideoTask{
		BatchID:          batchID,
		TaskIndex:        item.Index,
		Model:            string(item.Spec.Model),
		Prompt:           item.Spec.Prompt,
		FirstFrameImage:  item.Spec.FirstFrameImage,
		PromptOptimizer:  item.Spec.OptimizerEnabled(),
		SubjectReference: model.EncodeImageRefs(item.Spec.SubjectReference),
		SubmitTime:       time.Now(),
	}
}

// OutputPath 视频保存路径，序号从 1 开始
func OutputPath(outputDir string, index int, taskID string) string {
	return filepath.Join(outputDir, fmt.Sprintf("video_%d_%s.mp4", index+1, taskID))
}

// BuildSubmitRequest 构造提交请求。
// 本地图片文件编码为 data URI，其余引用（URL）原样传递；角色参考图只对 S2V 模型发送。
func BuildSubmitRequest(spec model.TaskSpec) (minimax.SubmitRequest, error) {
	req := minimax.SubmitRequest{
		Model:           string(spec.Model),
		Prompt:          spec.Prompt,
		PromptOptimizer: spec.OptimizerEnabled(),
	}

	if spec.FirstFrameImage != "" {
		ref, err := resolveImageRef(spec.FirstFrameImage)
		if err != nil {
			return req, err
		}
		req.FirstFrameImage = ref
	}

	if spec.Model.IsSubjectReference() {
		for _, r := range spec.SubjectReference {
			ref, err := resolveImageRef(r)
			if err != nil {
				return req, err
			}
			req.SubjectReference = append(req.SubjectReference, ref)
		}
	}

	return req, nil
}

func resolveImageRef(ref string) (string, error) {
	info, err := os.Stat(ref)
	if err != nil || info.IsDir() {
		return ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("读取图片失败: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(ref))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
