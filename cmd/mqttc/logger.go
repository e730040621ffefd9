package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/vitalvas/mqttclient"
)

// consoleLogger prints colored single-line records to a terminal.
type consoleLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *atomic.Int32
	fields mqttclient.LogFields
}

func newConsoleLogger(out io.Writer, level mqttclient.LogLevel) *consoleLogger {
	lvl := new(atomic.Int32)
	lvl.Store(int32(level))
	return &consoleLogger{
		mu:    &sync.Mutex{},
		out:   out,
		level: lvl,
	}
}

func (l *consoleLogger) Debug(msg string, fields mqttclient.LogFields) {
	l.log(mqttclient.LogLevelDebug, msg, fields)
}

func (l *consoleLogger) Info(msg string, fields mqttclient.LogFields) {
	l.log(mqttclient.LogLevelInfo, msg, fields)
}

func (l *consoleLogger) Warn(msg string, fields mqttclient.LogFields) {
	l.log(mqttclient.LogLevelWarn, msg, fields)
}

func (l *consoleLogger) Error(msg string, fields mqttclient.LogFields) {
	l.log(mqttclient.LogLevelError, msg, fields)
}

func (l *consoleLogger) WithFields(fields mqttclient.LogFields) mqttclient.Logger {
	merged := make(mqttclient.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &consoleLogger{mu: l.mu, out: l.out, level: l.level, fields: merged}
}

func (l *consoleLogger) Level() mqttclient.LogLevel {
	return mqttclient.LogLevel(l.level.Load())
}

func (l *consoleLogger) SetLevel(level mqttclient.LogLevel) {
	l.level.Store(int32(level))
}

func (l *consoleLogger) log(level mqttclient.LogLevel, msg string, fields mqttclient.LogFields) {
	if level < l.Level() {
		return
	}

	var b strings.Builder
	b.WriteString(color.GreenString(time.Now().Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(levelString(level))
	b.WriteByte(' ')
	b.WriteString(color.CyanString(msg))

	all := make(mqttclient.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", color.CyanString(k), all[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

func levelString(level mqttclient.LogLevel) string {
	switch level {
	case mqttclient.LogLevelDebug:
		return color.MagentaString("DEBUG")
	case mqttclient.LogLevelInfo:
		return color.BlueString("INFO ")
	case mqttclient.LogLevelWarn:
		return color.YellowString("WARN ")
	case mqttclient.LogLevelError:
		return color.RedString("ERROR")
	default:
		return level.String()
	}
}
