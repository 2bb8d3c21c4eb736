package engine

import (
	"fmt"
	"sort"
)

// DiffResult is the outcome of comparing a tree with its manifest. Every
// path set is sorted. A path appears in at most one of Missing, Errored and
// the mismatch sets; it may be in both SizeMismatch and HashMismatch.
type DiffResult struct {
	Missing      []string          `json:"missing" yaml:"missing"`
	Extra        []string          `json:"extra" yaml:"extra"`
	SizeMismatch []string          `json:"size_mismatch" yaml:"size_mismatch"`
	HashMismatch []string          `json:"hash_mismatch" yaml:"hash_mismatch"`
	Errored      []string          `json:"errored" yaml:"errored"`
	Errors       map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`

	OK            int  `json:"ok" yaml:"ok"`
	TotalExpected int  `json:"total_expected" yaml:"total_expected"`
	Aborted       bool `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

func newDiffResult(total int) *DiffResult {
	return &DiffResult{
		Missing:       []string{},
		Extra:         []string{},
		SizeMismatch:  []string{},
		HashMismatch:  []string{},
		Errored:       []string{},
		Errors:        map[string]string{},
		TotalExpected: total,
	}
}

func (d *DiffResult) sort() {
	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	sort.Strings(d.SizeMismatch)
	sort.Strings(d.HashMismatch)
	sort.Strings(d.Errored)
}

// Mismatched returns the sorted union of SizeMismatch and HashMismatch.
func (d *DiffResult) Mismatched() []string {
	seen := make(map[string]struct{}, len(d.SizeMismatch)+len(d.HashMismatch))
	out := make([]string, 0, len(d.SizeMismatch)+len(d.HashMismatch))
	for _, set := range [][]string{d.SizeMismatch, d.HashMismatch} {
		for _, p := range set {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Checked returns the number of manifest entries classified so far.
func (d *DiffResult) Checked() int {
	return d.OK + len(d.Missing) + len(d.Mismatched()) + len(d.Errored)
}

// Clean reports whether the tree matches the manifest exactly.
func (d *DiffResult) Clean() bool {
	return !d.Aborted && len(d.Missing) == 0 && len(d.Extra) == 0 &&
		len(d.SizeMismatch) == 0 && len(d.HashMismatch) == 0 && len(d.Errored) == 0
}

// Severity grades a DiffResult.
type Severity string

const (
	// SeverityPass means no discrepancy.
	SeverityPass Severity = "pass"
	// SeverityWarn means the only discrepancies are extra files.
	SeverityWarn Severity = "warn"
	// SeverityFail means files are missing, changed or unreadable, or the
	// compare did not finish.
	SeverityFail Severity = "fail"
)

// Status grades the result.
func (d *DiffResult) Status() Severity {
	switch {
	case d.Aborted || len(d.Missing) > 0 || len(d.SizeMismatch) > 0 ||
		len(d.HashMismatch) > 0 || len(d.Errored) > 0:
		return SeverityFail
	case len(d.Extra) > 0:
		return SeverityWarn
	default:
		return SeverityPass
	}
}

// Summary holds per-category counts.
type Summary struct {
	Total        int `json:"total" yaml:"total"`
	OK           int `json:"ok" yaml:"ok"`
	Missing      int `json:"missing" yaml:"missing"`
	SizeMismatch int `json:"size_mismatch" yaml:"size_mismatch"`
	HashMismatch int `json:"hash_mismatch" yaml:"hash_mismatch"`
	Extra        int `json:"extra" yaml:"extra"`
	Errored      int `json:"errored" yaml:"errored"`
}

// Summary returns the counts of every category.
func (d *DiffResult) Summary() Summary {
	return Summary{
		Total:        d.TotalExpected,
		OK:           d.OK,
		Missing:      len(d.Missing),
		SizeMismatch: len(d.SizeMismatch),
		HashMismatch: len(d.HashMismatch),
		Extra:        len(d.Extra),
		Errored:      len(d.Errored),
	}
}

// String renders the summary as one log line.
func (s Summary) String() string {
	return fmt.Sprintf("total=%d ok=%d missing=%d size_mismatch=%d hash_mismatch=%d extra=%d errored=%d",
		s.Total, s.OK, s.Missing, s.SizeMismatch, s.HashMismatch, s.Extra, s.Errored)
}
