package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"portfolio/internal/models"
)

func TestNew(t *testing.T) {
	log, err := New(models.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(models.LogConfig{Level: "warn", Development: true})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New(models.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
