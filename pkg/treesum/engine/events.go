package engine

import (
	"sync"

	"github.com/jamesainslie/treesum/pkg/treesum/logging"
)

// Op identifies an engine operation.
type Op string

const (
	// OpBuild creates a manifest.
	OpBuild Op = "build"
	// OpCompare verifies a tree against its manifest.
	OpCompare Op = "compare"
)

// Kind is the type of an Event.
type Kind int

const (
	// KindStart is emitted once the candidate files are known.
	KindStart Kind = iota
	// KindFile is emitted for every file processed successfully.
	KindFile
	// KindError is emitted for every file or directory that could not be read.
	KindError
	// KindSummary carries the one-line outcome of the operation.
	KindSummary
	// KindDone is the last event of an operation, aborted or not.
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindFile:
		return "file"
	case KindError:
		return "error"
	case KindSummary:
		return "summary"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Status is the per-file outcome carried by file events.
type Status string

const (
	StatusHashed       Status = "hashed"
	StatusOK           Status = "ok"
	StatusMissing      Status = "missing"
	StatusSizeMismatch Status = "size-mismatch"
	StatusHashMismatch Status = "hash-mismatch"
	StatusMismatch     Status = "size+hash-mismatch"
	StatusErrored      Status = "errored"
)

// Event is one progress notification. Index counts from 1 and never
// decreases within an operation; Total is the progress denominator.
type Event struct {
	Op      Op
	Kind    Kind
	Index   int
	Total   int
	Path    string
	Digest  string
	Status  Status
	Err     error
	Message string
}

// Sink receives events. Emit is never called concurrently by the engine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes one structured log line per event.
type LogSink struct {
	Logger *logging.Logger
}

// NewLogSink returns a sink logging through the "engine" component.
func NewLogSink() *LogSink {
	return &LogSink{Logger: logging.Get("engine")}
}

// Emit implements Sink. Per-file successes are logged at debug level.
func (s *LogSink) Emit(e Event) {
	log := s.Logger.With("op", string(e.Op))
	switch e.Kind {
	case KindStart:
		log.Info("started", "total", e.Total, "root", e.Path)
	case KindFile:
		log.Debug("file", "index", e.Index, "total", e.Total, "path", e.Path, "status", string(e.Status), "digest", e.Digest)
	case KindError:
		log.Warn("unreadable", "index", e.Index, "path", e.Path, "error", e.Err)
	case KindSummary:
		log.Info(e.Message)
	case KindDone:
		if e.Err != nil {
			log.Warn("finished", "error", e.Err)
			return
		}
		log.Info("finished", "processed", e.Index, "total", e.Total)
	}
}

// lockedSink serializes Emit calls.
type lockedSink struct {
	mu   sync.Mutex
	sink Sink
}

func (s *lockedSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Emit(e)
}
