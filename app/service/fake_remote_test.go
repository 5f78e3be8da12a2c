package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"hailuo-batch/app/database"
	"hailuo-batch/app/logger"
	"hailuo-batch/app/store"
	"hailuo-batch/app/utils/minimax"

	"github.com/stretchr/testify/require"
)

var errNetwork = errors.New("connection reset by peer")

// fakeRemote 按提示词/任务ID返回预设结果，并记录每次调用
type fakeRemote struct {
	mu sync.Mutex

	submit   func(req minimax.SubmitRequest) (*minimax.SubmitResponse, error)
	query    func(taskID string) (*minimax.StatusResponse, error)
	videoURL string

	submitted []minimax.SubmitRequest
	queried   []string
	retrieved []string
}

func (f *fakeRemote) Submit(_ context.Context, req minimax.SubmitRequest) (*minimax.SubmitResponse, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	return f.submit(req)
}

func (f *fakeRemote) QueryStatus(_ context.Context, taskID string) (*minimax.StatusResponse, error) {
	f.mu.Lock()
	f.queried = append(f.queried, taskID)
	f.mu.Unlock()
	if taskID == "" {
		return nil, minimax.ErrEmptyTaskID
	}
	return f.query(taskID)
}

func (f *fakeRemote) RetrieveFile(_ context.Context, fileID string) (string, error) {
	f.mu.Lock()
	f.retrieved = append(f.retrieved, fileID)
	f.mu.Unlock()
	return f.videoURL + "/" + fileID + ".mp4", nil
}

func (f *fakeRemote) queryCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.queried {
		if id == taskID {
			n++
		}
	}
	return n
}

func (f *fakeRemote) retrieveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retrieved)
}

func accepted(taskID string) (*minimax.SubmitResponse, error) {
	raw := `{"task_id":"` + taskID + `","base_resp":{"status_code":0,"status_msg":"success"}}`
	return &minimax.SubmitResponse{TaskID: taskID, Raw: json.RawMessage(raw)}, nil
}

func status(taskID, s, fileID string) (*minimax.StatusResponse, error) {
	resp := &minimax.StatusResponse{TaskID: taskID, Status: s, FileID: fileID}
	resp.Raw, _ = json.Marshal(map[string]any{"task_id": taskID, "status": s, "file_id": fileID})
	return resp, nil
}

// newVideoServer 提供视频下载地址
func newVideoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-mp4-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestStore(t *testing.T) *store.TaskStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return store.NewTaskStore(db)
}
