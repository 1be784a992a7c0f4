package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("production json logger", func(t *testing.T) {
		logger, err := New("debug", false)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.WithFields(map[string]any{"check": "ok"}).Debug("logger smoke test")
	})

	t.Run("pretty console logger", func(t *testing.T) {
		logger, err := New("info", true)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger, err := New("chatty", false)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})
}

func TestNewNoop(t *testing.T) {
	logger := NewNoop()
	assert.NotNil(t, logger)
	logger.WithError(assert.AnError).Error("discarded")
}
