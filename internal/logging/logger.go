/*
 * internal/logging/logger.go
 *
 * Minimal logging abstraction used across the watcher, store and enrichment worker.
 */

package logging

import (
	"fmt"
	"log"
)

// Logger is the logging surface the rest of the service depends on.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger implements Logger on top of the standard library's log package, prefixing every
// line with a bracketed component name, e.g. "[sbom] scan failed: ...".
type StdLogger struct {
	component string
}

// New returns a Logger that tags every line with component.
func New(component string) *StdLogger {
	return &StdLogger{component: component}
}

func (l *StdLogger) Debugf(format string, args ...any) { l.printf(format, args...) }
func (l *StdLogger) Infof(format string, args ...any)  { l.printf(format, args...) }
func (l *StdLogger) Warnf(format string, args ...any)  { l.printf(format, args...) }
func (l *StdLogger) Errorf(format string, args ...any) { l.printf(format, args...) }

func (l *StdLogger) printf(format string, args ...any) {
	log.Printf("[%s] %s", l.component, fmt.Sprintf(format, args...))
}

// NoopLogger discards everything; useful as a default in tests.
type NoopLogger struct{}

func (NoopLogger) Debugf(string, ...any) {}
func (NoopLogger) Infof(string, ...any)  {}
func (NoopLogger) Warnf(string, ...any)  {}
func (NoopLogger) Errorf(string, ...any) {}
