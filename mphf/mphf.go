// Package mphf implements five interchangeable minimal perfect hash
// function constructions (RecSplit, CHD, BBHash, PTHash and FCH) that
// share a common builder/query contract, a 64-bit fingerprint
// verification step, an overflow table for keys a construction could
// not place collision-free, and a common serialized binary framing.
//
// None of the five constructions stores keys. Membership is verified by
// comparing a fixed 64-bit fingerprint (see fingerprint) computed at
// query time against the fingerprint recorded for the candidate slot at
// build time.
package mphf

import (
	"errors"
	"fmt"
)

// Algorithm identifies one of the five MPHF constructions. The numeric
// values are part of the on-disk wire format (see encodeHeader) and must not
// be renumbered.
type Algorithm uint32

const (
	AlgorithmNone     Algorithm = 0
	AlgorithmRecSplit Algorithm = 1
	AlgorithmCHD      Algorithm = 2
	AlgorithmBBHash   Algorithm = 3
	AlgorithmPTHash   Algorithm = 4
	AlgorithmFCH      Algorithm = 5
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmRecSplit:
		return "recsplit"
	case AlgorithmCHD:
		return "chd"
	case AlgorithmBBHash:
		return "bbhash"
	case AlgorithmPTHash:
		return "pthash"
	case AlgorithmFCH:
		return "fch"
	default:
		return fmt.Sprintf("algorithm(%d)", uint32(a))
	}
}

// ErrEmptyInput is returned by Build when the key set is empty. Per-key
// placement failures never cause this error: they land in overflow
// instead, so a build only fails on empty input.
var ErrEmptyInput = errors.New("mphf: empty key set")

// ErrInvalidFormat is returned by Deserialize on a bad magic, an
// unsupported format version, an unrecognized algorithm id, or a
// truncated payload.
var ErrInvalidFormat = errors.New("mphf: invalid format")

// ErrDuplicateKey is returned by Builder.Add for a key already added to
// the same builder.
var ErrDuplicateKey = errors.New("mphf: duplicate key")

// ErrBuildInvariant is returned by Build when the placed-key bijection
// invariant does not hold after placement: a defect in the placement
// algorithm itself rather than an ordinary overflow spill, which never
// causes a build failure.
var ErrBuildInvariant = errors.New("mphf: build invariant violated")

// Stats summarizes the memory and placement characteristics of a built
// Hasher, per the algorithmic-structures convention: bits_per_key counts
// only the algorithmic
// structures (buckets, displacements, bit arrays with rank tables,
// pilots, fingerprints, overflow), not fixed struct overhead.
type Stats struct {
	KeyCount      int
	PerfectCount  int
	OverflowCount int
	MemoryBytes   int
	BitsPerKey    float64
}

// Params carries the per-algorithm tuning knobs used at build time.
// Only Seed and the fields of the Algorithm passed to NewBuilder are
// meaningful; the others are ignored. Zero values mean "use the
// algorithm's documented default".
type Params struct {
	// LeafSize for RecSplit, in [4,16], default 8.
	LeafSize int
	// Lambda for CHD, default 5.0.
	Lambda float64
	// NumLevels for BBHash, in [1,10], default 3.
	NumLevels int
	// Gamma for BBHash, in [1,10], default 2.0.
	Gamma float64
	// Alpha for PTHash, in [0.80,0.99], default 0.98.
	Alpha float64
	// BucketSize for FCH, default 4.0.
	BucketSize float64
	// Seed seeds every keyed hash the builder uses. Zero leaves the
	// builder on its fixed default seed, so unseeded builds are
	// reproducible.
	Seed uint64
}

// Builder accumulates keys and produces an immutable Hasher.
type Builder interface {
	Add(key []byte) error
	AddAll(keys [][]byte) error
	WithSeed(seed uint64) Builder
	Build() (Hasher, error)
}

// Hasher is an immutable, queryable minimal perfect hash function built
// over a fixed key set.
type Hasher interface {
	// SlotFor returns the unique index in [0, KeyCount()) assigned to
	// key, or (0, false) if key was not in the build set (or, with
	// residual probability 2^-64, a fingerprint false match for a key
	// that was never added).
	SlotFor(key []byte) (uint64, bool)

	// Hash returns the same value as SlotFor when present; if absent it
	// returns the sentinel KeyCount().
	Hash(key []byte) uint64

	// IsPerfectFor reports whether key was placed in the algorithm's
	// dense perfect-hash region rather than landing in overflow.
	IsPerfectFor(key []byte) bool

	// Algorithm identifies which construction built this Hasher.
	Algorithm() Algorithm

	// Statistics reports memory/placement characteristics.
	Statistics() Stats

	// Serialize encodes the Hasher to the common binary framing.
	Serialize() []byte

	// Verify checks that every key in keys round-trips through
	// SlotFor to a unique index in [0, len(keys)). Used by callers
	// (e.g. the Optimizer) that must confirm a build is a valid
	// bijection before committing to it.
	Verify(keys [][]byte) error
}

// NewBuilder returns a Builder for the given algorithm.
func NewBuilder(algo Algorithm, params Params) (Builder, error) {
	var b Builder
	switch algo {
	case AlgorithmRecSplit:
		b = newRecSplitBuilder(params)
	case AlgorithmCHD:
		b = newCHDBuilder(params)
	case AlgorithmBBHash:
		b = newBBHashBuilder(params)
	case AlgorithmPTHash:
		b = newPTHashBuilder(params)
	case AlgorithmFCH:
		b = newFCHBuilder(params)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %s", ErrInvalidFormat, algo)
	}
	if params.Seed != 0 {
		b = b.WithSeed(params.Seed)
	}
	return b, nil
}

// Deserialize decodes a Hasher previously produced by Hasher.Serialize,
// dispatching on the algorithm id recorded in the common header.
func Deserialize(buf []byte) (Hasher, error) {
	hdr, body, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}

	switch hdr.algorithm {
	case AlgorithmRecSplit:
		return deserializeRecSplit(hdr, body)
	case AlgorithmCHD:
		return deserializeCHD(hdr, body)
	case AlgorithmBBHash:
		return deserializeBBHash(hdr, body)
	case AlgorithmPTHash:
		return deserializePTHash(hdr, body)
	case AlgorithmFCH:
		return deserializeFCH(hdr, body)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm id %d", ErrInvalidFormat, hdr.algorithm)
	}
}
