package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, l)

	l, err = ParseLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestTraceRecordsAreNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "resolver round", "round", 1)

	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "round=1")
	assert.NotContains(t, buf.String(), "time=")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), LevelError))
	logger.Error("dropped")
}
