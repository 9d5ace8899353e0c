package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-rootscan/pkg/config"
	apperrors "github.com/gc-rootscan/pkg/errors"
	"github.com/gc-rootscan/pkg/utils"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		GC:   gcConfig("update", 2),
		Heap: testHeapConfig(),
		Database: config.DatabaseConfig{
			Enabled:  true,
			Type:     "sqlite",
			Database: ":memory:",
		},
		Storage: config.StorageConfig{
			Type:        "local",
			LocalPath:   t.TempDir(),
			Prefix:      "rootscan",
			Compression: "zstd",
		},
	}
}

func TestService_New(t *testing.T) {
	t.Run("WithLogger", func(t *testing.T) {
		svc, err := New(testConfig(t), &utils.NullLogger{})
		require.NoError(t, err)
		require.NotNil(t, svc)
	})

	t.Run("WithoutLogger", func(t *testing.T) {
		svc, err := New(testConfig(t), nil)
		require.NoError(t, err)
		require.NotNil(t, svc)
	})

	t.Run("NilConfig", func(t *testing.T) {
		_, err := New(nil, nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
	})
}

func TestService_RunPhasesBeforeInitialize(t *testing.T) {
	svc, err := New(testConfig(t), &utils.NullLogger{})
	require.NoError(t, err)

	_, err = svc.RunPhases(context.Background())
	require.Error(t, err)
}

func TestService_RunPhases(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.GC.Phases = 3

	svc, err := New(cfg, &utils.NullLogger{})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(ctx))
	t.Cleanup(func() { _ = svc.Stop() })

	require.NoError(t, svc.HealthCheck(ctx))

	reports, err := svc.RunPhases(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.True(t, r.Complete)
	}

	stats := svc.Stats()
	assert.Equal(t, 3, stats.Phases)
	assert.Zero(t, stats.Incomplete)
	assert.Positive(t, stats.Oops)

	stored, err := svc.RecentReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, reports[2].ID, stored[0].ID)

	matches, err := filepath.Glob(filepath.Join(cfg.Storage.LocalPath, "rootscan", "*", "*", "*", "*.json.zst"))
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	for _, m := range matches {
		info, err := os.Stat(m)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestService_WithoutDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	cfg.Storage.Type = "none"

	svc, err := New(cfg, &utils.NullLogger{})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(ctx))

	reports, err := svc.RunPhases(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	_, err = svc.RecentReports(ctx, 5)
	assert.Error(t, err)
	assert.NoError(t, svc.HealthCheck(ctx))
	assert.NoError(t, svc.Stop())
}

func TestShapeFromConfig(t *testing.T) {
	shape := ShapeFromConfig(testHeapConfig())
	assert.Equal(t, 500, shape.Objects)
	assert.Equal(t, uint64(7), shape.Seed)
	assert.NoError(t, shape.Validate())
}
