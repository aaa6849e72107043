package mphf

import (
	"github.com/dchest/siphash"
	"github.com/opencoff/go-fasthash"
)

// keyedHash is the seeded bucket-assignment hash shared by CHD, BBHash
// and FCH: a SipHash-2-4 keyed by (seed, salt), following the
// siphash usage in the opencoff BBHash DBWriter's checksum path. SipHash
// is used here (rather than a cheaper multiply-mix) because bucket
// assignment is adversary-exposed: a hostile key set should not be able
// to force pathological bucket sizes.
func keyedHash(key []byte, seed, salt uint64) uint64 {
	return siphash.Hash(salt, seed, key)
}

// fastHash is a cheap, non-adversarial keyed hash for RecSplit's bucket
// assignment and per-bucket local-slot search and for PTHash's group
// assignment and pilot search, where the
// inner loop runs thousands of times per build and a SipHash call would
// dominate build time. Grounded in the opencoff BBHash DBWriter, which
// uses fasthash.Hash64 for its own per-key dedup hash.
func fastHash(key []byte, seed uint64) uint64 {
	return fasthash.Hash64(seed, key)
}

// rotatingSeed derives a deterministic per-bucket sub-seed from a base
// seed and a bucket index, following RecSplit's
// hash0(key, base_seed XOR bucket_idx*C1 XOR s*C2) construction.
func rotatingSeed(base uint64, bucketIdx uint64, s uint64) uint64 {
	return base ^ (bucketIdx * recSplitC1) ^ (s * recSplitC2)
}

// mix64 is an unkeyed avalanche used to fold a hash against a
// displacement/pilot candidate, mirroring opencoff-go-chd's rhash
// combination step and PTHash's mix(hash(key) XOR p).
func mix64(h, x uint64) uint64 {
	return avalanche(h ^ x)
}

// nextPow2 returns the smallest power of two >= n, minimum 2. Grounded
// in opencoff-go-chd's nextpow2.
func nextPow2(n uint64) uint64 {
	if n < 2 {
		return 2
	}

	p := uint64(1)
	for p < n {
		p <<= 1
	}

	return p
}
