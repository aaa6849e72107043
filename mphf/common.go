package mphf

import (
	"bytes"
	"fmt"
	"sort"
)

// sortDedupKeys implements build step 1, common to every algorithm:
// sort input keys and deduplicate.
func sortDedupKeys(keys [][]byte) [][]byte {
	cp := make([][]byte, len(keys))
	copy(cp, keys)

	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })

	out := cp[:0]
	for i, k := range cp {
		if i > 0 && bytes.Equal(k, cp[i-1]) {
			continue
		}
		out = append(out, k)
	}

	return out
}

// base holds the state and behavior shared by every Hasher
// implementation: the fingerprint table for placed keys, the overflow
// table for spilled keys, and the derived Stats/Hash/IsPerfectFor/Verify
// methods that only need SlotFor from the concrete type.
type base struct {
	algo         Algorithm
	keyCount     uint64
	fingerprints []uint64
	overflow     *overflowTable
	// algoMemoryBytes is the memory used by algorithm-specific
	// structures (buckets, displacements, bit arrays + rank tables,
	// pilots, seeds) excluding the fingerprint table and overflow
	// arrays, which base.memoryBytes adds in.
	algoMemoryBytes int
}

func (b *base) Algorithm() Algorithm { return b.algo }

func (b *base) memoryBytes() int {
	return b.algoMemoryBytes + len(b.fingerprints)*8 + b.overflow.memoryBytes()
}

func (b *base) Statistics() Stats {
	mem := b.memoryBytes()

	var bitsPerKey float64
	if b.keyCount > 0 {
		bitsPerKey = 8 * float64(mem) / float64(b.keyCount)
	}

	return Stats{
		KeyCount:      int(b.keyCount),
		PerfectCount:  len(b.fingerprints),
		OverflowCount: b.overflow.len(),
		MemoryBytes:   mem,
		BitsPerKey:    bitsPerKey,
	}
}

// hashFromSlotFor implements Hasher.Hash in terms of a concrete
// SlotFor: present keys return their slot, absent keys return the
// sentinel keyCount.
func hashFromSlotFor(h Hasher, keyCount uint64, key []byte) uint64 {
	if s, ok := h.SlotFor(key); ok {
		return s
	}
	return keyCount
}

// isPerfectFromSlotFor implements Hasher.IsPerfectFor: a key is
// "perfect" if it resolved to a slot in the dense [0, perfectCount)
// region rather than an overflow slot.
func isPerfectFromSlotFor(h Hasher, perfectCount uint64, key []byte) bool {
	s, ok := h.SlotFor(key)
	return ok && s < perfectCount
}

// verifyBijection implements Hasher.Verify, common to every algorithm:
// the map key -> SlotFor(key) must be a bijection from keys onto
// [0, len(keys)).
func verifyBijection(h Hasher, keys [][]byte) error {
	n := uint64(len(keys))
	seen := make([]bool, n)

	for _, k := range keys {
		s, ok := h.SlotFor(k)
		if !ok {
			return fmt.Errorf("%w: key has no slot after build", ErrInvalidFormat)
		}
		if s >= n {
			return fmt.Errorf("%w: slot %d out of range [0,%d)", ErrInvalidFormat, s, n)
		}
		if seen[s] {
			return fmt.Errorf("%w: slot %d assigned to more than one key", ErrInvalidFormat, s)
		}
		seen[s] = true
	}

	return nil
}
