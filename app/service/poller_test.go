package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"
	"hailuo-batch/app/utils/minimax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(remote *fakeRemote, st TaskStore) *StatusPoller {
	log := logger.NewNop()
	return NewStatusPoller(remote, st, NewArtifactDownloader(remote, log), NewWorkerPool(2), log)
}

func TestPollerFetchesArtifactOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	task := &model.VideoTask{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusSubmitted, OutputFile: OutputPath(outDir, 0, "t1")}
	require.NoError(t, st.Insert(ctx, []*model.VideoTask{task}))

	remote := &fakeRemote{
		videoURL: newVideoServer(t),
		query:    func(taskID string) (*minimax.StatusResponse, error) { return status(taskID, "Success", "f1") },
	}
	poller := newTestPoller(remote, st)

	pending := []*model.VideoTask{task}
	assert.Empty(t, poller.Round(ctx, pending))
	assert.Equal(t, model.TaskStatusCompleted, task.Status)

	// 同一条记录再次进入轮询时不会重复查询或下载
	assert.Empty(t, poller.Round(ctx, pending))
	assert.Equal(t, 1, remote.queryCount("t1"))
	assert.Equal(t, 1, remote.retrieveCount())
}

func TestPollerRunRepeatedSuccessAcrossRounds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	tasks := []*model.VideoTask{
		{BatchID: "b1", TaskIndex: 0, TaskID: "fast", Status: model.TaskStatusSubmitted, OutputFile: OutputPath(outDir, 0, "fast")},
		{BatchID: "b1", TaskIndex: 1, TaskID: "slow", Status: model.TaskStatusSubmitted, OutputFile: OutputPath(outDir, 1, "slow")},
	}
	require.NoError(t, st.Insert(ctx, tasks))

	slowRounds := 0
	remote := &fakeRemote{videoURL: newVideoServer(t)}
	remote.query = func(taskID string) (*minimax.StatusResponse, error) {
		if taskID == "fast" {
			return status(taskID, "Success", "f-fast")
		}
		slowRounds++
		if slowRounds < 3 {
			return status(taskID, "Processing", "")
		}
		return status(taskID, "Success", "f-slow")
	}

	rounds, err := newTestPoller(remote, st).Run(ctx, tasks, PollOptions{Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, rounds)
	assert.Equal(t, 1, remote.queryCount("fast"))
	assert.Equal(t, 3, remote.queryCount("slow"))
	assert.Equal(t, 2, remote.retrieveCount())
	for _, task := range tasks {
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
	}
}

func TestPollerSuccessWithoutFileIDStaysPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := &model.VideoTask{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusPending, OutputFile: "unused.mp4"}
	require.NoError(t, st.Insert(ctx, []*model.VideoTask{task}))

	remote := &fakeRemote{
		query: func(taskID string) (*minimax.StatusResponse, error) { return status(taskID, "Success", "") },
	}

	remaining := newTestPoller(remote, st).Round(ctx, []*model.VideoTask{task})
	assert.Len(t, remaining, 1)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, 0, remote.retrieveCount())
}

func TestPollerAdoptsStoredTerminalState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, []*model.VideoTask{{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusFailed, ErrorKind: model.ErrorKindRemote}}))

	// 内存中是过期的副本
	stale := &model.VideoTask{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusSubmitted}
	remote := &fakeRemote{
		query: func(taskID string) (*minimax.StatusResponse, error) { return status(taskID, "Preparing", "") },
	}

	remaining := newTestPoller(remote, st).Round(ctx, []*model.VideoTask{stale})
	assert.Empty(t, remaining)
	assert.Equal(t, model.TaskStatusFailed, stale.Status)
	assert.Equal(t, model.ErrorKindRemote, stale.ErrorKind)
}

func TestPollersWithStaleCopiesDownloadOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	require.NoError(t, st.Insert(ctx, []*model.VideoTask{
		{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusPending, OutputFile: OutputPath(outDir, 0, "t1")},
	}))

	// 两个刷新方各自读到一份未结束的副本
	first, err := st.ListNonTerminal(ctx, "b1")
	require.NoError(t, err)
	second, err := st.ListNonTerminal(ctx, "b1")
	require.NoError(t, err)

	remote := &fakeRemote{
		videoURL: newVideoServer(t),
		query:    func(taskID string) (*minimax.StatusResponse, error) { return status(taskID, "Success", "f1") },
	}

	assert.Empty(t, newTestPoller(remote, st).Round(ctx, []*model.VideoTask{&first[0]}))
	assert.Empty(t, newTestPoller(remote, st).Round(ctx, []*model.VideoTask{&second[0]}))

	assert.Equal(t, 1, remote.retrieveCount())
	assert.Equal(t, model.TaskStatusCompleted, second[0].Status)
	assert.Equal(t, "f1", second[0].FileID)

	stored, err := st.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, stored.Status)
}

func TestPollersRacingOnOneRecordDownloadOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	require.NoError(t, st.Insert(ctx, []*model.VideoTask{
		{BatchID: "b1", TaskID: "t1", Status: model.TaskStatusPending, OutputFile: OutputPath(outDir, 0, "t1")},
	}))

	remote := &fakeRemote{
		videoURL: newVideoServer(t),
		query:    func(taskID string) (*minimax.StatusResponse, error) { return status(taskID, "Success", "f1") },
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		copies, err := st.ListNonTerminal(ctx, "b1")
		require.NoError(t, err)
		wg.Add(1)
		go func(task *model.VideoTask) {
			defer wg.Done()
			newTestPoller(remote, st).Round(ctx, []*model.VideoTask{task})
		}(&copies[0])
	}
	wg.Wait()

	assert.Equal(t, 1, remote.retrieveCount())
}

func TestQueryStatusesCoversEveryID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, []*model.VideoTask{{BatchID: "b1", TaskID: "done", Status: model.TaskStatusCompleted, FileID: "f1"}}))

	remote := &fakeRemote{
		query: func(taskID string) (*minimax.StatusResponse, error) {
			switch taskID {
			case "broken":
				return nil, errNetwork
			case "done":
				return status(taskID, "Fail", "")
			default:
				return status(taskID, "Queueing", "")
			}
		},
	}

	results := newTestPoller(remote, st).QueryStatuses(ctx, []string{"done", "q1", "broken", "q1", ""})
	require.Len(t, results, 4)

	assert.Equal(t, model.RemoteFail, results["done"].Status.Kind)
	assert.Equal(t, model.RemotePending, results["q1"].Status.Kind)
	assert.Equal(t, "Queueing", results["q1"].Status.String())
	assert.ErrorIs(t, results["broken"].Err, errNetwork)
	assert.ErrorIs(t, results[""].Err, minimax.ErrEmptyTaskID)
	assert.Equal(t, 1, remote.queryCount("q1"))

	// 批量查询不修改存储
	stored, err := st.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, stored.Status)
	assert.Equal(t, "f1", stored.FileID)
	assert.Empty(t, stored.Error)
}

func TestPollerRunRespectsCancellation(t *testing.T) {
	remote := &fakeRemote{
		query: func(taskID string) (*minimax.StatusResponse, error) { return nil, errNetwork },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := &model.VideoTask{TaskID: "t1", Status: model.TaskStatusSubmitted}
	rounds, err := newTestPoller(remote, newTestStore(t)).Run(ctx, []*model.VideoTask{task}, PollOptions{Interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rounds)
	assert.Equal(t, model.TaskStatusSubmitted, task.Status)
}
