package sinks

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/fatih/color"
)

var levelColors = map[types.Level]*color.Color{
	types.DebugLevel: color.New(color.FgCyan),
	types.InfoLevel:  color.New(color.FgGreen),
	types.WarnLevel:  color.New(color.FgYellow),
	types.ErrorLevel: color.New(color.FgRed),
	types.FatalLevel: color.New(color.FgRed, color.Bold),
}

// ConsoleSink prints human readable lines. A line about a step is prefixed
// with the step label, and capability calls additionally name the
// capability (or the provider serving it).
type ConsoleSink struct {
	out      io.Writer
	minLevel types.Level
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout, minLevel: types.InfoLevel}
}

// WithMinLevel returns the sink configured to drop events below level.
func (c *ConsoleSink) WithMinLevel(level types.Level) *ConsoleSink {
	c.minLevel = level
	return c
}

// WithWriter redirects console output, mainly for tests.
func (c *ConsoleSink) WithWriter(w io.Writer) *ConsoleSink {
	c.out = w
	return c
}

func (c *ConsoleSink) MinLevel() types.Level {
	return c.minLevel
}

func (c *ConsoleSink) Write(event *log.LogEvent) error {
	level := color.New(color.FgWhite)
	if lc, ok := levelColors[event.Level]; ok {
		level = lc
	}

	scope := stringField(event.Fields, "step")
	if scope == "" {
		scope = "workflow"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s %s] %s: ",
		level.Sprint(strings.ToUpper(levelToString(event.Level))),
		event.Timestamp.Format(time.RFC3339),
		color.CyanString(scope),
	)

	tag := stringField(event.Fields, "capability")
	if tag == "" {
		tag = stringField(event.Fields, "provider")
	}
	if tag != "" {
		fmt.Fprintf(&b, "[%s] ", color.BlueString(tag))
	}

	msg := event.Message
	errMsg := stringField(event.Fields, "error")
	switch {
	case msg != "" && errMsg != "":
		fmt.Fprintf(&b, "%s: %s", msg, errMsg)
	case errMsg != "":
		b.WriteString(errMsg)
	default:
		b.WriteString(msg)
	}

	_, err := fmt.Fprintln(c.out, b.String())
	return err
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func levelToString(l types.Level) string {
	switch l {
	case types.DebugLevel:
		return "debug"
	case types.InfoLevel:
		return "info"
	case types.WarnLevel:
		return "warn"
	case types.ErrorLevel:
		return "error"
	case types.FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

func (c *ConsoleSink) Close() error {
	return nil
}
