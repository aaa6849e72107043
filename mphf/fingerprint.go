package mphf

import "hash/fnv"

// fingerprint computes a fixed 64-bit summary of key, distinct from any
// placement hash, used to verify membership at query time without
// storing keys: FNV-64a over the bytes, then a SplitMix64-style
// avalanche so that keys differing by one byte still produce
// uncorrelated fingerprints. Guaranteed non-zero.
func fingerprint(key []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(key)
	return avalancheNonZero(h.Sum64())
}

// avalanche is the SplitMix64 finalizer mix, reused from
// opencoff-go-chd's mix() for the same purpose: spread a cheap hash's
// bits before using it as a table index or fingerprint.
func avalanche(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// avalancheNonZero is avalanche with the zero output reserved, matching
// the standard hasher's "never zero" convention applied to fingerprints
// so that a zero fingerprint can never be mistaken for an unset/empty
// overflow slot.
func avalancheNonZero(x uint64) uint64 {
	v := avalanche(x)
	if v == 0 {
		return 1
	}
	return v
}
