package mqttclient

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"Error", LogLevelError},
		{"off", LogLevelNone},
		{"none", LogLevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)

	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestNoOpLogger(t *testing.T) {
	l := NewNoOpLogger()
	l.Debug("x", nil)
	l.Info("x", LogFields{"a": 1})
	l.Warn("x", nil)
	l.Error("x", nil)
	l.SetLevel(LogLevelDebug)

	assert.Equal(t, LogLevelNone, l.Level())
	assert.Same(t, l, l.WithFields(LogFields{"a": 1}))
}

func TestStdLogger(t *testing.T) {
	t.Run("filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(&buf, LogLevelWarn)

		l.Debug("debug", nil)
		l.Info("info", nil)
		l.Warn("warn", nil)
		l.Error("error", nil)

		out := buf.String()
		assert.NotContains(t, out, "[DEBUG]")
		assert.NotContains(t, out, "[INFO]")
		assert.Contains(t, out, "[WARN] warn")
		assert.Contains(t, out, "[ERROR] error")
	})

	t.Run("fields are sorted", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(&buf, LogLevelDebug)

		l.Info("published", LogFields{LogFieldTopic: "a/b", LogFieldQoS: 1, LogFieldPacketID: 7})
		assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()),
			"[INFO] published packet_id=7 qos=1 topic=a/b"), buf.String())
	})

	t.Run("children share level and keep fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(&buf, LogLevelInfo)
		child := l.WithFields(LogFields{LogFieldClientID: "c1"})

		child.Info("hello", LogFields{"extra": true})
		assert.Contains(t, buf.String(), "client_id=c1 extra=true")

		l.SetLevel(LogLevelError)
		assert.Equal(t, LogLevelError, child.Level())

		buf.Reset()
		child.Info("dropped", nil)
		assert.Empty(t, buf.String())
	})

	t.Run("call fields override base fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(&buf, LogLevelDebug).WithFields(LogFields{"k": "base"})

		l.Debug("m", LogFields{"k": "call"})
		assert.Contains(t, buf.String(), "k=call")
		assert.NotContains(t, buf.String(), "k=base")
	})

	t.Run("concurrent use", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(&buf, LogLevelInfo)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				l.WithFields(LogFields{"i": i}).Info("line", nil)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 10, strings.Count(buf.String(), "[INFO] line"))
	})
}

func TestFormatLogLine(t *testing.T) {
	assert.Equal(t, "[ERROR] boom", FormatLogLine(LogLevelError, "boom", nil))
	assert.Equal(t, "[DEBUG] m a=1 b=x", FormatLogLine(LogLevelDebug, "m", LogFields{"b": "x", "a": 1}))
}

func TestMergeFields(t *testing.T) {
	assert.Nil(t, mergeFields(nil, nil))

	base := LogFields{"a": 1}
	merged := mergeFields(base, LogFields{"b": 2})
	assert.Equal(t, LogFields{"a": 1, "b": 2}, merged)
	assert.Equal(t, LogFields{"a": 1}, base)
}
