package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", true)
	require.NoError(t, err)

	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("loud", false)
	assert.Error(t, err)
}

func TestForCommand(t *testing.T) {
	l := Nop().ForCommand("push")
	assert.NotNil(t, l)
}
