package gumolog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Logger writes log entries carrying a fixed trace context. Entries at
// Error severity and above go to the error stream, everything else to the
// default stream, mirroring how App Engine separates request logs.
type Logger struct {
	projectID  string
	defaultLog zerolog.Logger
	errorLog   zerolog.Logger
	ctx        Context
	fetchCtx   func() *Context
	cwd        string
}

func (l *Logger) Debug(msg string) { l.log(SeverityDebug, msg) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(SeverityDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(msg string) { l.log(SeverityInfo, msg) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(SeverityInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warning(msg string) { l.log(SeverityWarning, msg) }
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.log(SeverityWarning, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(msg string) { l.log(SeverityError, msg) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(SeverityError, fmt.Sprintf(format, args...))
}

func (l *Logger) Critical(msg string) { l.log(SeverityCritical, msg) }
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.log(SeverityCritical, fmt.Sprintf(format, args...))
}

// Exception logs an error together with its wrap chain at Error severity.
func (l *Logger) Exception(err error) {
	l.log(SeverityError, eris.ToString(err, true))
}

// Log writes a message at an arbitrary severity.
func (l *Logger) Log(severity Severity, msg string) {
	l.log(severity, msg)
}

func (l *Logger) log(severity Severity, msg string) {
	if l.fetchCtx != nil {
		if ctx := l.fetchCtx(); ctx != nil {
			l.ctx = *ctx
		}
	}

	target := l.defaultLog
	if severity >= SeverityError {
		target = l.errorLog
	}

	event := target.Log().
		Str("timestamp", time.Now().UTC().Format(time.RFC3339Nano)).
		Str("severity", severity.Name())

	if l.ctx.Trace != "" {
		event = event.Str("logging.googleapis.com/trace", l.ctx.Trace)
	}
	if l.ctx.SpanID != "" {
		event = event.Str("logging.googleapis.com/spanId", l.ctx.SpanID)
	}

	if file, line, function, ok := l.caller(); ok {
		event = event.Dict("logging.googleapis.com/sourceLocation", zerolog.Dict().
			Str("file", file).
			Int("line", line).
			Str("function", function))
	}

	event.Msg(msg)
}

// caller finds the first stack frame outside this package.
func (l *Logger) caller() (string, int, string, bool) {
	for skip := 2; skip < 10; skip++ {
		pc, file, line, ok := runtime.Caller(skip)
		if !ok {
			break
		}

		function := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
		}

		if strings.Contains(function, "gumo-logging.(*Logger)") {
			continue
		}

		if l.cwd != "" {
			if rel, err := filepath.Rel(l.cwd, file); err == nil && !strings.HasPrefix(rel, "..") {
				file = rel
			}
		}

		return file, line, function, true
	}

	return "", 0, "", false
}

func workingDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}
