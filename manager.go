package gumolog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Manager builds loggers bound to a project and an output mode. On Google
// platforms (detected through GAE_DEPLOYMENT_ID) entries are structured
// JSON; elsewhere they are plain text lines.
type Manager struct {
	projectID  string
	structured bool
	stdout     io.Writer
	stderr     io.Writer
	fetchCtx   func() *Context
}

// Option configures a Manager.
type Option func(*Manager)

// WithProject overrides the project id read from GOOGLE_CLOUD_PROJECT.
func WithProject(projectID string) Option {
	return func(m *Manager) { m.projectID = projectID }
}

// WithStructured forces structured or plain output regardless of the
// platform detection.
func WithStructured(structured bool) Option {
	return func(m *Manager) { m.structured = structured }
}

// WithOutput redirects the default and error streams. Mostly useful in
// tests.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(m *Manager) {
		m.stdout = stdout
		m.stderr = stderr
	}
}

// WithContextFetcher installs a hook that supplies the current request's
// Context at log time. Returning nil keeps the logger's own context.
func WithContextFetcher(fetch func() *Context) Option {
	return func(m *Manager) { m.fetchCtx = fetch }
}

// NewManager creates a Manager. The project id comes from
// GOOGLE_CLOUD_PROJECT and defaults to "<unknown-project>".
func NewManager(opts ...Option) *Manager {
	manager := &Manager{
		projectID:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		structured: os.Getenv("GAE_DEPLOYMENT_ID") != "",
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	if manager.projectID == "" {
		manager.projectID = "<unknown-project>"
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// ProjectID returns the project the manager logs against.
func (m *Manager) ProjectID() string {
	return m.projectID
}

// Context parses an X-Cloud-Trace-Context header into a Context scoped to
// the manager's project.
func (m *Manager) Context(traceHeader string) Context {
	return ParseTraceContext(m.projectID, traceHeader)
}

// Logger returns a logger bound to the trace context parsed from the
// given header. An empty header yields a logger without correlation
// fields.
func (m *Manager) Logger(traceHeader string) *Logger {
	stdout := m.stdout
	stderr := m.stderr
	if !m.structured {
		stdout = newTextWriter(stdout)
		stderr = newTextWriter(stderr)
	}

	return &Logger{
		projectID:  m.projectID,
		defaultLog: zerolog.New(stdout),
		errorLog:   zerolog.New(stderr),
		ctx:        m.Context(traceHeader),
		fetchCtx:   m.fetchCtx,
		cwd:        workingDir(),
	}
}

// Flush flushes both streams if they support it. The standard streams
// don't buffer, so this is a no-op unless callers installed buffered
// writers.
func (m *Manager) Flush() error {
	for _, w := range []io.Writer{m.stdout, m.stderr} {
		if flusher, ok := w.(interface{ Flush() error }); ok {
			if err := flusher.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}
