package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hailuo-batch/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewFileOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log := New(config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		Dir:    dir,
	})

	log.Infof("批次 %s 已开始", "b-1")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "批次 b-1 已开始")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNopAndNamed(t *testing.T) {
	log := NewNop().Named("poller")
	log.Infof("no output %d", 1)
	assert.NoError(t, log.Close())
}

func TestWithErrorAddsErrorField(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log := New(config.LogConfig{Level: "info", Format: "json", Output: "file", Dir: dir})

	log.WithError(errors.New("磁盘已满")).Error("更新任务状态失败")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error":"磁盘已满"`)
	assert.Contains(t, string(data), "更新任务状态失败")
}
