package tracking

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/repository"
)

func newRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tracking.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(config.Tables()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewRepository(db)
}

func TestStoreRecordsRun(t *testing.T) {
	repo := newRepo(t)
	store := NewStore(repo)
	ctx := context.Background()

	runID, err := store.StartRun(ctx, "car-pricing", "LR_Model")
	require.NoError(t, err)
	require.NoError(t, store.LogParams(ctx, runID, map[string]string{"seed": "0"}))
	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{"test_r2": 0.7, "train_r2": 0.71}))
	require.NoError(t, store.EndRun(ctx, runID, StatusFinished))

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, run.Status)
	assert.Equal(t, "LR_Model", run.Name)
	assert.Len(t, run.Metrics, 2)

	second, err := store.StartRun(ctx, "car-pricing", "LR_Model")
	require.NoError(t, err)
	assert.NotEqual(t, runID, second)
	runs, err := repo.ListRuns(ctx, "car-pricing")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEndRunRejectsNonTerminalStatus(t *testing.T) {
	store := NewStore(newRepo(t))
	ctx := context.Background()
	runID, err := store.StartRun(ctx, "e", "r")
	require.NoError(t, err)
	assert.Error(t, store.EndRun(ctx, runID, StatusRunning))
	assert.NoError(t, store.EndRun(ctx, runID, StatusFailed))
}
