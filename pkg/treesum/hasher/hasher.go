// Package hasher computes content digests of files by streaming them in
// fixed-size chunks, so memory use does not grow with file size.
package hasher

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultChunkSize is the read size used when streaming a file.
const DefaultChunkSize = 1 << 20

// Error reports a failure to hash a particular file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hashing %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hasher streams files through one algorithm.
// A Hasher is safe for concurrent use.
type Hasher struct {
	algo Algorithm
	pool sync.Pool
}

// New returns a Hasher for algo reading chunkSize bytes per call.
// A non-positive chunkSize uses DefaultChunkSize.
func New(algo Algorithm, chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	h := &Hasher{algo: algo}
	h.pool.New = func() any {
		buf := make([]byte, chunkSize)
		return &buf
	}
	return h
}

// Algorithm returns the algorithm the hasher uses.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// Hash returns the lowercase hex digest of the file at path.
// Failures are returned as *Error; the hasher never retries.
func (h *Hasher) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	defer f.Close()

	digest, err := h.HashReader(f)
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return digest, nil
}

// HashReader returns the lowercase hex digest of everything read from r.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	bufp := h.pool.Get().(*[]byte)
	defer h.pool.Put(bufp)

	sum := h.algo.New()
	if _, err := io.CopyBuffer(writerOnly{sum}, readerOnly{r}, *bufp); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// readerOnly and writerOnly hide ReaderFrom/WriterTo so io.CopyBuffer
// always goes through the fixed-size buffer.
type readerOnly struct{ io.Reader }

type writerOnly struct{ io.Writer }
