package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"hailuo-batch/app/database"
	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"
	"hailuo-batch/app/service"
	"hailuo-batch/app/store"
	"hailuo-batch/app/utils/minimax"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router  *gin.Engine
	store   *store.TaskStore
	queries *atomic.Int32
}

// newTestEnv 用 httptest 模拟远端接口：t-fail 生成失败，t-broken 返回 500，其余处理中
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var queries atomic.Int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		id := r.URL.Query().Get("task_id")
		switch id {
		case "t-broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "t-fail":
			_, _ = w.Write([]byte(`{"task_id":"t-fail","status":"Fail","base_resp":{"status_code":0}}`))
		default:
			_, _ = w.Write([]byte(`{"task_id":"` + id + `","status":"Processing","base_resp":{"status_code":0}}`))
		}
	}))
	t.Cleanup(remote.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.NewTaskStore(db)
	client := minimax.New("key", remote.URL, 5*time.Second)
	log := logger.NewNop()
	orch := service.NewBatchOrchestrator(client, st, log)
	runner := service.NewBatchRunner(orch, service.RunOptions{OutputDir: t.TempDir(), MaxWorkers: 2, PollInterval: time.Millisecond, MaxRounds: 1}, log)
	t.Cleanup(runner.Stop)

	h := NewTaskHandler(st, orch, runner, 2, log)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	api.GET("/batches", h.ListBatches)
	api.GET("/batches/:batch_id/tasks", h.GetBatchTasks)
	api.POST("/batches/:batch_id/refresh", h.RefreshBatch)
	api.GET("/tasks/:task_id", h.GetTask)
	api.POST("/tasks/status", h.QueryStatus)

	return &testEnv{router: r, store: st, queries: &queries}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, ApiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func (e *testEnv) seedBatch(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.CreateBatch(ctx, &model.VideoBatch{BatchID: "b1", OutputDir: t.TempDir(), MaxWorkers: 2, TaskCount: 3}))
	require.NoError(t, e.store.Insert(ctx, []*model.VideoTask{
		{BatchID: "b1", TaskIndex: 0, TaskID: "t-run", Status: model.TaskStatusSubmitted},
		{BatchID: "b1", TaskIndex: 1, TaskID: "t-fail", Status: model.TaskStatusSubmitted},
		{BatchID: "b1", TaskIndex: 2, TaskID: "t-done", Status: model.TaskStatusCompleted, FileID: "f1"},
	}))
}

func TestBatchQueries(t *testing.T) {
	env := newTestEnv(t)
	env.seedBatch(t)

	code, resp := env.do(t, http.MethodGet, "/api/batches", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["total"])

	code, resp = env.do(t, http.MethodGet, "/api/batches/b1/tasks", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 3)

	code, _ = env.do(t, http.MethodGet, "/api/batches/nope/tasks", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = env.do(t, http.MethodGet, "/api/tasks/t-done", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Completed", resp.Data.(map[string]any)["status"])

	code, _ = env.do(t, http.MethodGet, "/api/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQueryStatusCachesSuccessfulLookups(t *testing.T) {
	env := newTestEnv(t)
	env.seedBatch(t)

	body := BulkStatusRequest{TaskIDs: []string{"t-done", "t-broken", "t-done"}}
	code, resp := env.do(t, http.MethodPost, "/api/tasks/status", body)
	require.Equal(t, http.StatusOK, code)

	items := resp.Data.([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Processing", items[0].(map[string]any)["status"])
	assert.NotEmpty(t, items[1].(map[string]any)["error"])
	assert.Equal(t, int32(2), env.queries.Load())

	// t-done 命中缓存，只有失败的查询会重新发出
	_, _ = env.do(t, http.MethodPost, "/api/tasks/status", body)
	assert.Equal(t, int32(3), env.queries.Load())

	// 批量查询不改变本地记录
	task, err := env.store.Get(context.Background(), "t-done")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, task.Status)

	code, _ = env.do(t, http.MethodPost, "/api/tasks/status", map[string]any{"task_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRefreshBatchAppliesRemoteStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedBatch(t)

	code, resp := env.do(t, http.MethodPost, "/api/batches/b1/refresh", nil)
	require.Equal(t, http.StatusOK, code)

	tasks := resp.Data.([]any)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Pending", tasks[0].(map[string]any)["status"])
	assert.Equal(t, "Failed", tasks[1].(map[string]any)["status"])
	assert.Equal(t, "Completed", tasks[2].(map[string]any)["status"])
	assert.Equal(t, int32(2), env.queries.Load())

	code, _ = env.do(t, http.MethodPost, "/api/batches/missing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
