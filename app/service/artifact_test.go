package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hailuo-batch/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadAllReportsPerItem(t *testing.T) {
	remote := &fakeRemote{videoURL: newVideoServer(t)}
	dir := t.TempDir()

	items := []DownloadItem{
		{FileID: "f1", Dest: filepath.Join(dir, "a.mp4")},
		{FileID: "f2", Dest: ""},
		{FileID: "f3", Dest: filepath.Join(dir, "nested", "c.mp4")},
	}

	outcomes := NewArtifactDownloader(remote, logger.NewNop()).DownloadAll(context.Background(), NewWorkerPool(2), items)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, "f3", outcomes[2].FileID)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "c.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4-bytes", string(data))
	assert.Equal(t, 2, remote.retrieveCount())
}
