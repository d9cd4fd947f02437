package logger

import (
	"testing"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerByEnvironment(t *testing.T) {
	for _, env := range []string{"prod", "test", "dev", ""} {
		l, err := NewLogger(&config.Config{Environment: env})
		require.NoError(t, err, env)
		assert.NotNil(t, l, env)
	}
}

func TestMakeFieldsKeepsZapFields(t *testing.T) {
	fields := makeFields([]interface{}{zap.Int64("job_id", 7), "loose"})
	require.Len(t, fields, 2)
	assert.Equal(t, "job_id", fields[0].Key)
	assert.Equal(t, "1", fields[1].Key)
}

func TestGetLoggerBeforeInit(t *testing.T) {
	logger = nil
	assert.NotNil(t, GetLogger())

	l, err := InitLogger(&config.Config{Environment: "test"})
	require.NoError(t, err)
	assert.Same(t, l, GetLogger())

	Info("job created", zap.Int64("job_id", 1))
	Error("job failed", zap.Int64("job_id", 1))
}
