// Package logging provides the pluggable structured-logging sink used by
// every node. The core never reaches for a package-global logger; a Sink is
// constructed once per process and passed down to each component, following
// the teacher's per-call zerolog usage. The only package-level logging
// setting touched is zerolog's timestamp format, set once in init.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Sink is the logging surface every node depends on. It is intentionally
// narrow: components log structured events through it and never reach past
// it to a concrete zerolog.Logger, so the sink can be swapped (file, nop,
// buffer-for-tests) without touching call sites.
type Sink interface {
	With(fields map[string]interface{}) Sink
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
}

type sink struct {
	logger zerolog.Logger
}

// New constructs a sink writing JSON lines to stdout, tagged with component
// and nodeID, used by cmd/ entrypoints.
func New(component, nodeID string) Sink {
	return NewFromWriter(os.Stdout, component, nodeID)
}

// NewFromWriter builds a sink writing to an arbitrary writer, used by tests
// that want to assert against captured log output.
func NewFromWriter(w io.Writer, component, nodeID string) Sink {
	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("component", component).
		Str("node", nodeID).
		Logger()
	return &sink{logger: logger}
}

// Nop returns a sink that discards everything, used by tests that don't
// care about log output.
func Nop() Sink {
	return &sink{logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func (s *sink) With(fields map[string]interface{}) Sink {
	ctx := s.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &sink{logger: ctx.Logger()}
}

func (s *sink) Trace() *zerolog.Event { return s.logger.Trace() }
func (s *sink) Debug() *zerolog.Event { return s.logger.Debug() }
func (s *sink) Info() *zerolog.Event  { return s.logger.Info() }
func (s *sink) Warn() *zerolog.Event  { return s.logger.Warn() }
func (s *sink) Error() *zerolog.Event { return s.logger.Error() }
func (s *sink) Fatal() *zerolog.Event { return s.logger.Fatal() }

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
