// Package history keeps a log of finished builds and compares in a Badger
// database under the user's data directory.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
)

// Key prefixes
const (
	prefixRun  = "r:" // r:<started nanos, 8 bytes big endian><id> -> Run
	prefixID   = "i:" // i:<id> -> run key
	prefixMeta = "m:"
)

const (
	idLen     = 36
	stampLen  = 8
	runKeyLen = len(prefixRun) + stampLen + idLen
)

// ShortIDLen is the length of the ID shown in listings.
const ShortIDLen = 8

var (
	// ErrNotFound is returned when no run matches an ID.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned when an ID prefix matches more than one run.
	ErrAmbiguous = errors.New("ambiguous run id")
)

// Run is one recorded operation.
type Run struct {
	ID string `json:"id"`
	engine.Run
}

// ShortID returns the first characters of the run ID.
func (r *Run) ShortID() string {
	if len(r.ID) <= ShortIDLen {
		return r.ID
	}
	return r.ID[:ShortIDLen]
}

// Filter narrows List.
type Filter struct {
	// Root keeps runs of this absolute root only. Empty keeps all.
	Root string

	// Op keeps runs of this operation only. Empty keeps all.
	Op engine.Op

	// Limit caps the number of runs returned. Zero means no limit.
	Limit int
}

func (f Filter) match(r *Run) bool {
	if f.Root != "" && r.Root != f.Root {
		return false
	}
	return f.Op == "" || r.Op == f.Op
}

// Store is the run log.
type Store struct {
	db        *badger.DB
	retention time.Duration
	log       *logging.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRetention expires runs after d. Zero keeps them until pruned.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// Open opens or creates the store in dir.
func Open(dir string, options ...Option) (*Store, error) {
	return open(badger.DefaultOptions(dir), options)
}

// OpenInMemory returns a store that lives only as long as the process.
func OpenInMemory(options ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), options)
}

func open(opts badger.Options, options []Option) (*Store, error) {
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	s := &Store{db: db, log: logging.Get("history"), now: time.Now}
	for _, o := range options {
		o(s)
	}

	if err := s.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run under a new ID. It satisfies engine.Recorder.
func (s *Store) Record(run engine.Run) error {
	_, err := s.Add(run)
	return err
}

// Add stores run and returns it with its assigned ID.
func (s *Store) Add(run engine.Run) (*Run, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	r := &Run{ID: uuid.NewString(), Run: run}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run: %w", err)
	}
	key := runKey(r.StartedAt, r.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(s.entry(key, data)); err != nil {
			return err
		}
		return txn.SetEntry(s.entry([]byte(prefixID+r.ID), key))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}

	s.log.Debug("run recorded", "id", r.ShortID(), "op", string(r.Op), "root", r.Root)
	return r, nil
}

func (s *Store) entry(key, val []byte) *badger.Entry {
	e := badger.NewEntry(key, val)
	if s.retention > 0 {
		e = e.WithTTL(s.retention)
	}
	return e
}

// List returns matching runs, newest first.
func (s *Store) List(f Filter) ([]*Run, error) {
	var runs []*Run

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(append([]byte(prefixRun), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if f.Limit > 0 && len(runs) >= f.Limit {
				break
			}
			var r Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			if f.match(&r) {
				runs = append(runs, &r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Last returns the newest run of op for root, or ErrNotFound.
func (s *Store) Last(root string, op engine.Op) (*Run, error) {
	runs, err := s.List(Filter{Root: root, Op: op, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// Get returns the run whose ID is id or starts with it.
func (s *Store) Get(id string) (*Run, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrNotFound
	}

	var r *Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var key []byte
		prefix := []byte(prefixID + id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if key != nil {
				return fmt.Errorf("%w: %s", ErrAmbiguous, id)
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			key = v
		}
		if key == nil {
			return ErrNotFound
		}

		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			r = &Run{}
			return json.Unmarshal(val, r)
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Prune deletes runs started before cutoff and returns how many it removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		end := runKey(cutoff, "")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key[:len(end)]) >= string(end) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan runs: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete run: %w", err)
		}
		if len(key) == runKeyLen {
			id := key[len(prefixRun)+stampLen:]
			if err := wb.Delete(append([]byte(prefixID), id...)); err != nil {
				return 0, fmt.Errorf("failed to delete run: %w", err)
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	if len(keys) > 0 {
		s.log.Info("pruned history", "runs", len(keys), "before", cutoff.Format(time.RFC3339))
	}
	return len(keys), nil
}

// PruneOlderThan deletes runs older than age.
func (s *Store) PruneOlderThan(age time.Duration) (int, error) {
	return s.Prune(s.now().Add(-age))
}

// Clear deletes every run.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix([]byte(prefixRun), []byte(prefixID)); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// runKey orders runs by start time; the ID breaks ties.
func runKey(t time.Time, id string) []byte {
	key := make([]byte, 0, runKeyLen)
	key = append(key, prefixRun...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	return append(key, id...)
}

var _ engine.Recorder = (*Store)(nil)
