package database

import (
	"path/filepath"
	"testing"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirectoryAndTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")

	db, err := Open(path, logger.NewNop())
	require.NoError(t, err)
	defer Close(db)

	assert.FileExists(t, path)
	assert.True(t, db.Migrator().HasTable(&model.VideoTask{}))
	assert.True(t, db.Migrator().HasTable(&model.VideoBatch{}))
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
