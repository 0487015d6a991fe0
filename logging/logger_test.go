package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*RunLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return logger, &buf
}

func TestRunLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept warn")
	logger.Error("kept error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "kept error")
}

func TestRunLoggerKeyValueArgsBecomeAttrs(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.Info("executor.start", "frame_id", "root_abc", "turn", 3)

	out := buf.String()
	assert.Contains(t, out, `"msg":"executor.start"`)
	assert.Contains(t, out, `"frame_id":"root_abc"`)
	assert.Contains(t, out, `"turn":3`)
	assert.NotContains(t, out, "EXTRA")
}

func TestRunLoggerOddArgsFollowSlogConvention(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.Warn("lonely value", "dangling")

	assert.Contains(t, buf.String(), `"!BADKEY":"dangling"`)
}

func TestRunLoggerWithFrameAttachesIdentifiers(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.WithFrame("task-1", "task-1/0/root").WithComponent("executor").Info("turn started")

	out := buf.String()
	assert.Contains(t, out, `"task_id":"task-1"`)
	assert.Contains(t, out, `"frame_id":"task-1/0/root"`)
	assert.Contains(t, out, `"component":"executor"`)

	// The derived logger must not mutate its parent.
	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "task_id")
}

func TestRunLoggerWithContextIsCopied(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	child := logger.WithContext("attempt", 2)
	child.Info("retrying")
	require.Contains(t, buf.String(), `"attempt":2`)

	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "attempt")
}

func TestLogToolCallReportsFailure(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogToolCall("workspace", 25*time.Millisecond, false, errors.New("no such file"))

	out := buf.String()
	assert.Contains(t, out, "Tool execution failed")
	assert.Contains(t, out, `"tool_name":"workspace"`)
	assert.Contains(t, out, "no such file")
}

func TestLogConsolidationDegradedWarns(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogConsolidation(10, true, time.Second, errors.New("summarizer unavailable"))

	out := buf.String()
	assert.Contains(t, out, "Consolidation degraded to carry-forward")
	assert.Contains(t, out, `"up_to_seq":10`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestLogPlannerCallSuccess(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogPlannerCall("anthropic", 1, 300*time.Millisecond, true, nil)

	out := buf.String()
	assert.Contains(t, out, "Planner call completed")
	assert.Contains(t, out, `"provider":"anthropic"`)
	assert.Contains(t, out, `"action_count":1`)
}
