package logging_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/logging"
)

func TestNew_FallsBackToInfoLevelOnUnparsableLevel(t *testing.T) {
	logger := logging.New("not-a-level", "json", "gateway")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	_ = logger
}

func TestRecoverPanic_SwallowsPanicAndLogsIt(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	func() {
		defer logging.RecoverPanic(logger, "test-goroutine", map[string]any{"agent_id": "a1"})
		panic("boom")
	}()

	require.Contains(t, buf.String(), "goroutine panic recovered")
	require.Contains(t, buf.String(), "test-goroutine")
	require.Contains(t, buf.String(), "boom")
}

func TestRecoverPanic_NoopWhenNoPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	func() {
		defer logging.RecoverPanic(logger, "test-goroutine", nil)
	}()

	require.Empty(t, buf.String())
}
