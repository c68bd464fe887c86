package logging

import (
	"context"
	"errors"
	"repeatme/internal/core/domain/logging"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	core, recorded := observer.New(zap.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core))

	// Exercise ---
	log.Info(context.Background(), "Reminder has been sent.", logging.Entry("reminderID", 7))
	logging.Error(context.Background(), log, errors.New("connection reset"), logging.Entry("owner", "telegram:1"))

	// Verify ---
	entries := recorded.AllUntimed()
	assert.Len(entries, 2)
	assert.Equal("Reminder has been sent.", entries[0].Message)
	assert.Equal(map[string]interface{}{"reminderID": int64(7)}, entries[0].ContextMap())
	assert.Equal(zap.ErrorLevel, entries[1].Level)
	assert.Equal("connection reset", entries[1].ContextMap()["err"])
	assert.Equal("telegram:1", entries[1].ContextMap()["owner"])
	assert.Contains(entries[1].Message, "TestZapLogger")
}
