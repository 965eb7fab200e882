package logging

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"netflows/internal/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty"})
	require.Error(t, err)
}

func TestNewBuildsAtLevel(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestForRunAndStageFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	runLogger, runID := ForRun(zap.New(core), "build")
	_, err := uuid.Parse(runID)
	require.NoError(t, err)

	Stage(runLogger, "projections").Info("done")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, runID, fields["run_id"])
	assert.Equal(t, "build", fields["command"])
	assert.Equal(t, "projections", fields["stage"])
}
