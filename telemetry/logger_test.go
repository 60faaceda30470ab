package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/chrysochos/society-agent-sub001/config"
)

func TestNewLoggerDefaultsToJSONAndInfo(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerHonorsDebugLevel(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerConsoleEncoding(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Encoding: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
