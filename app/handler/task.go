package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"
	"hailuo-batch/app/service"
	"hailuo-batch/app/store"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// statusCacheTTL 批量状态查询结果的缓存时间
const statusCacheTTL = 10 * time.Second

// TaskHandler 批次与任务查询接口
type TaskHandler struct {
	store       *store.TaskStore
	orch        *service.BatchOrchestrator
	runner      *service.BatchRunner
	maxWorkers  int
	statusCache *cache.Cache
	logger      *logger.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(st *store.TaskStore, orch *service.BatchOrchestrator, runner *service.BatchRunner, maxWorkers int, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		store:       st,
		orch:        orch,
		runner:      runner,
		maxWorkers:  maxWorkers,
		statusCache: cache.New(statusCacheTTL, time.Minute),
		logger:      log,
	}
}

// CreateBatch 提交一组任务并在后台运行
func (h *TaskHandler) CreateBatch(c *gin.Context) {
	var specs []model.TaskSpec
	if err := c.ShouldBindJSON(&specs); err != nil {
		fail(c, http.StatusBadRequest, "任务列表格式错误: "+err.Error())
		return
	}
	if len(specs) == 0 {
		fail(c, http.StatusBadRequest, "任务列表为空")
		return
	}

	batchID := h.runner.Start(specs, "")
	success(c, gin.H{"batch_id": batchID, "task_count": len(specs)}, "批次已开始")
}

// ListBatches 分页列出批次
func (h *TaskHandler) ListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	batches, total, err := h.store.ListBatches(c.Request.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Errorf("获取批次列表失败: %v", err)
		fail(c, http.StatusInternalServerError, "获取批次列表失败")
		return
	}

	for i := range batches {
		batches[i].Running = h.runner.IsActive(batches[i].BatchID)
	}

	success(c, gin.H{
		"list":     batches,
		"total":    total,
		"current":  page,
		"pageSize": pageSize,
	}, "获取批次列表成功")
}

// GetBatchTasks 按输入顺序返回批次内的任务
func (h *TaskHandler) GetBatchTasks(c *gin.Context) {
	batchID := c.Param("batch_id")
	if _, err := h.store.GetBatch(c.Request.Context(), batchID); err != nil {
		h.storeError(c, err, "批次不存在")
		return
	}

	tasks, err := h.store.ListByBatch(c.Request.Context(), batchID)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	success(c, tasks, "获取任务列表成功")
}

// GetTask 按任务ID读取记录
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.store.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		h.storeError(c, err, "任务不存在")
		return
	}
	success(c, task, "获取任务成功")
}

// BulkStatusRequest 批量状态查询请求
type BulkStatusRequest struct {
	TaskIDs []string `json:"task_ids" binding:"required,min=1,max=200"`
}

// StatusItem 单个任务的远端状态
type StatusItem struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	FileID string `json:"file_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// QueryStatus 批量查询远端状态，不修改本地记录
func (h *TaskHandler) QueryStatus(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	items := make(map[string]StatusItem, len(req.TaskIDs))
	var missing []string
	for _, id := range req.TaskIDs {
		if cached, ok := h.statusCache.Get(id); ok {
			items[id] = cached.(StatusItem)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		results := h.orch.Poller(service.NewWorkerPool(h.maxWorkers)).QueryStatuses(c.Request.Context(), missing)
		for id, r := range results {
			item := StatusItem{TaskID: id}
			if r.Err != nil {
				// 查询失败的结果不缓存
				item.Error = r.Err.Error()
			} else {
				item.Status = r.Status.String()
				item.FileID = r.FileID
				h.statusCache.SetDefault(id, item)
			}
			items[id] = item
		}
	}

	list := make([]StatusItem, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, id := range req.TaskIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		list = append(list, items[id])
	}
	success(c, list, "查询完成")
}

// RefreshBatch 对批次内未结束的任务执行一轮状态检查
func (h *TaskHandler) RefreshBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if _, err := h.store.GetBatch(c.Request.Context(), batchID); err != nil {
		h.storeError(c, err, "批次不存在")
		return
	}
	if h.runner.IsActive(batchID) {
		fail(c, http.StatusConflict, "批次正在运行中")
		return
	}

	tasks, err := h.orch.RefreshBatch(c.Request.Context(), batchID, h.maxWorkers)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	success(c, tasks, "刷新完成")
}

func (h *TaskHandler) storeError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, notFound)
		return
	}
	h.logger.Errorf("读取任务记录失败: %v", err)
	fail(c, http.StatusInternalServerError, "读取任务记录失败")
}
