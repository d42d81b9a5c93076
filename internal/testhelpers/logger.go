// Package testhelpers holds helpers shared by ginkgo suites.
package testhelpers

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/onsi/ginkgo/v2"

	"github.com/grafana/nanofetch/log"
)

// TestLogger implements log.Logger by writing to GinkgoWriter, so output only
// shows up for failing specs or with -v.
type TestLogger struct {
	debug *color.Color
	info  *color.Color
	warn  *color.Color
	fail  *color.Color
}

var _ log.Logger = (*TestLogger)(nil)

// NewTestLogger creates a new TestLogger for Ginkgo tests.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		debug: color.New(color.Faint),
		info:  color.New(color.FgBlue),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed),
	}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log(l.debug, "DEBUG", msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log(l.info, "INFO", msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log(l.warn, "WARN", msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log(l.fail, "ERROR", msg, keysAndValues)
}

func (l *TestLogger) log(c *color.Color, level, msg string, args []any) {
	ginkgo.GinkgoWriter.Println(c.Sprintf("[%s] %s", level, Format(msg, args...)))
}

// Format renders msg followed by its key-value pairs, e.g. "Fetch failed (kind=ClientError, status=404)".
// A trailing key without a value is dropped.
func Format(msg string, keysAndValues ...any) string {
	if len(keysAndValues) < 2 {
		return msg
	}
	pairs := make([]string, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return fmt.Sprintf("%s (%s)", msg, strings.Join(pairs, ", "))
}
