package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/logging"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
)

// State is the operation state of one root.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateComparing
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateComparing:
		return "comparing"
	default:
		return "idle"
	}
}

// ReportWriter persists the report of a finished compare and returns its path.
type ReportWriter interface {
	WriteReport(root string, d *DiffResult, m *manifest.Manifest) (string, error)
}

// Recorder stores a summary of every finished operation.
type Recorder interface {
	Record(run Run) error
}

// Run summarizes one build or compare for the Recorder.
type Run struct {
	Op         Op            `json:"op"`
	Root       string        `json:"root"`
	Algorithm  string        `json:"algorithm"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Files      int           `json:"files"`
	Bytes      int64         `json:"bytes"`
	Errors     int           `json:"errors"`
	Summary    *Summary      `json:"summary,omitempty"`
	Status     Severity      `json:"status,omitempty"`
	ReportPath string        `json:"report_path,omitempty"`
	Aborted    bool          `json:"aborted,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// CompareResult is the outcome of Controller.CompareManifest.
type CompareResult struct {
	Diff         *DiffResult
	Manifest     *manifest.Manifest
	ManifestPath string

	// ReportPath is the written report, empty when reporting is disabled,
	// the compare was aborted or the report could not be written.
	ReportPath string
	ReportErr  error

	Duration time.Duration
}

// Controller runs builds and compares with at most one operation per root.
// It is the surface the CLI, the TUI and the watcher drive.
type Controller struct {
	opts     Options
	reporter ReportWriter
	recorder Recorder
	log      *logging.Logger

	mu     sync.Mutex
	states map[string]State
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithReportWriter writes a report after every completed compare.
func WithReportWriter(w ReportWriter) ControllerOption {
	return func(c *Controller) { c.reporter = w }
}

// WithRecorder records every finished operation.
func WithRecorder(r Recorder) ControllerOption {
	return func(c *Controller) { c.recorder = r }
}

// NewController returns an idle Controller.
func NewController(opts Options, options ...ControllerOption) *Controller {
	c := &Controller{
		opts:   opts,
		log:    logging.Get("engine"),
		states: make(map[string]State),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// State returns the current operation state of root.
func (c *Controller) State(root string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[key(root)]
}

// PreflightManifestExists reports whether building root would replace an
// existing manifest.
func (c *Controller) PreflightManifestExists(root string) bool {
	return manifest.Exists(root)
}

// BuildManifest builds and writes the manifest of root. It returns ErrBusy
// without side effects when root already has an operation in flight.
func (c *Controller) BuildManifest(ctx context.Context, root string, overwrite bool) (*BuildResult, error) {
	release, err := c.acquire(root, StateBuilding)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	opts := c.opts
	opts.Overwrite = overwrite
	b, err := NewBuilder(opts)
	if err != nil {
		return nil, err
	}

	res, err := b.BuildAndWrite(ctx, root)
	run := Run{Op: OpBuild, Root: key(root), Algorithm: b.algo.Name, StartedAt: started, Duration: time.Since(started)}
	switch {
	case err == nil:
		run.Files = len(res.Manifest.Entries)
		run.Bytes = res.Bytes
		run.Errors = len(res.Errors)
		c.log.Info("manifest written", "root", run.Root, "path", res.Path, "files", run.Files, "errors", run.Errors)
	case errors.Is(err, ErrManifestExists):
		return nil, err
	default:
		run.Aborted = errors.Is(err, ErrAborted)
		run.Err = err.Error()
	}
	c.record(run)
	return res, err
}

// CompareManifest verifies root against its manifest, writes a report when a
// ReportWriter is configured and records the run. A report failure is
// returned in CompareResult.ReportErr and never changes the DiffResult.
func (c *Controller) CompareManifest(ctx context.Context, root string) (*CompareResult, error) {
	release, err := c.acquire(root, StateComparing)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	path, err := manifest.Locate(root)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}

	d, err := NewComparator(c.opts).Compare(ctx, m, root)
	res := &CompareResult{Diff: d, Manifest: m, ManifestPath: path, Duration: time.Since(started)}
	run := Run{Op: OpCompare, Root: key(root), Algorithm: m.Algorithm, StartedAt: started, Duration: res.Duration}
	if d != nil {
		s := d.Summary()
		run.Summary = &s
		run.Status = d.Status()
		run.Files = d.TotalExpected
		run.Errors = len(d.Errored)
		run.Aborted = d.Aborted
	}
	if err != nil {
		run.Err = err.Error()
		c.record(run)
		if d == nil {
			return nil, err
		}
		return res, err
	}

	if c.reporter != nil {
		res.ReportPath, res.ReportErr = c.reporter.WriteReport(key(root), d, m)
		if res.ReportErr != nil {
			c.log.Warn("report not written", "root", run.Root, "error", res.ReportErr)
		}
		run.ReportPath = res.ReportPath
	}
	c.log.Info("compare finished", "root", run.Root, "status", string(d.Status()), "summary", d.Summary().String())
	c.record(run)
	return res, nil
}

func (c *Controller) acquire(root string, s State) (func(), error) {
	k := key(root)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.states[k]; cur != StateIdle {
		return nil, fmt.Errorf("%s is %s: %w", k, cur, ErrBusy)
	}
	c.states[k] = s
	return func() {
		c.mu.Lock()
		delete(c.states, k)
		c.mu.Unlock()
	}, nil
}

func (c *Controller) record(run Run) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(run); err != nil {
		c.log.Warn("failed to record run", "op", string(run.Op), "root", run.Root, "error", err)
	}
}

// key normalizes root so "." and its absolute form share one state.
func key(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}
