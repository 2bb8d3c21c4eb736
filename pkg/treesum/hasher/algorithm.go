package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/sha3"
)

// Default is the algorithm used when none is configured.
const Default = "md5"

// ErrUnknownAlgorithm is returned by Lookup for unregistered names.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Algorithm names a hash function and knows its digest width.
type Algorithm struct {
	// Name is the identifier stored in manifests, e.g. "md5".
	Name string

	// Size is the digest length in bytes.
	Size int

	// New returns a fresh hash state.
	New func() hash.Hash
}

// HexLen returns the length of a hex-encoded digest.
func (a Algorithm) HexLen() int {
	return a.Size * 2
}

// ValidDigest reports whether s is a lowercase hex digest of the right length.
func (a Algorithm) ValidDigest(s string) bool {
	if len(s) != a.HexLen() {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

var registry = map[string]Algorithm{
	"md5":      {Name: "md5", Size: md5.Size, New: md5.New},
	"sha1":     {Name: "sha1", Size: sha1.Size, New: sha1.New},
	"sha256":   {Name: "sha256", Size: sha256.Size, New: sha256.New},
	"sha3-256": {Name: "sha3-256", Size: 32, New: sha3.New256},
	"xxh3":     {Name: "xxh3", Size: 16, New: newXXH3},
}

// Lookup returns the algorithm registered under name (case-insensitive).
func Lookup(name string) (Algorithm, error) {
	algo, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return algo, nil
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) Algorithm {
	algo, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return algo
}

// Names returns the registered algorithm names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// xxh3Digest adapts the 128-bit xxh3 streaming hasher to hash.Hash.
type xxh3Digest struct {
	h *xxh3.Hasher
}

func newXXH3() hash.Hash {
	return &xxh3Digest{h: xxh3.New()}
}

func (d *xxh3Digest) Write(p []byte) (int, error) { return d.h.Write(p) }

func (d *xxh3Digest) Sum(b []byte) []byte {
	sum := d.h.Sum128().Bytes()
	return append(b, sum[:]...)
}

func (d *xxh3Digest) Reset()         { d.h.Reset() }
func (d *xxh3Digest) Size() int      { return 16 }
func (d *xxh3Digest) BlockSize() int { return 64 }
