package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/config"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/history"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/report"
	"github.com/jamesainslie/treesum/pkg/treesum/tuner"
	"github.com/jamesainslie/treesum/pkg/treesum/types"
	"github.com/jamesainslie/treesum/pkg/treesum/walker"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

// Exit codes follow diff(1): 1 means the tree differs, 2 means trouble.
const (
	exitDiffers = 1
	exitTrouble = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// resolveRoot expands ~ and checks that the tree exists.
func resolveRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	return walker.Root(expanded)
}

// toolName is the tool string written into report metadata.
func toolName() string {
	return manifest.Tool + " " + version
}

// engineOptions builds engine options from the loaded configuration.
func engineOptions(sink engine.Sink) (engine.Options, error) {
	policy, err := ignore.New(cfg.Exclude...)
	if err != nil {
		return engine.Options{}, err
	}
	chunk, err := cfg.ChunkSize()
	if err != nil {
		return engine.Options{}, err
	}

	tuned := tuner.Auto(cfg.Workers, chunk)
	printVerbose("Config: %d hash workers, %d walk workers, %s chunks",
		tuned.HashWorkers, tuned.WalkWorkers, types.FormatSize(int64(tuned.ChunkSize)))

	return engine.Options{
		Algorithm:   cfg.Algorithm,
		Workers:     tuned.HashWorkers,
		WalkWorkers: tuned.WalkWorkers,
		ChunkSize:   tuned.ChunkSize,
		Policy:      policy,
		Sink:        engine.MultiSink{engine.NewLogSink(), sink},
	}, nil
}

// openHistory opens the run history. A store that cannot be opened (for
// instance because a watch process holds it) disables recording.
func openHistory() *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	store, err := history.Open(cfg.HistoryPath(), history.WithRetention(retention))
	if err != nil {
		printVerbose("history disabled: %v", err)
		return nil
	}
	return store
}

// newController wires reporting and history into a controller. The returned
// func releases the history store.
func newController(sink engine.Sink, writeReport bool) (*engine.Controller, func(), error) {
	opts, err := engineOptions(sink)
	if err != nil {
		return nil, nil, err
	}

	var options []engine.ControllerOption
	if writeReport && cfg.Report.Enabled {
		options = append(options, engine.WithReportWriter(&report.Writer{
			Format: cfg.Report.Format,
			Tool:   toolName(),
		}))
	}

	closer := func() {}
	if store := openHistory(); store != nil {
		options = append(options, engine.WithRecorder(store))
		closer = func() { _ = store.Close() }
	}
	return engine.NewController(opts, options...), closer, nil
}

// relaySink forwards events to a sink chosen after the controller is built,
// so one controller serves both the progress UI and plain output.
type relaySink struct {
	mu   sync.Mutex
	sink engine.Sink
}

func (r *relaySink) set(s engine.Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

// Emit implements engine.Sink.
func (r *relaySink) Emit(e engine.Event) {
	r.mu.Lock()
	s := r.sink
	r.mu.Unlock()
	if s != nil {
		s.Emit(e)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// interactive reports whether the progress UI should run.
func interactive(outputFormat string) bool {
	if viper.GetBool("no_interactive") || getQuiet() {
		return false
	}
	if outputFormat != "" && outputFormat != "pretty" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}
