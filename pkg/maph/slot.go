package maph

import "runtime"

// Slot field offsets within a 512-byte slot.
const (
	slotOffHashVersion = 0
	slotOffSize        = 8
	slotOffReserved    = 12
	slotOffData        = 16
)

// maxReadRetries bounds the seqlock read retry loop. A write holds the
// odd version for only a memcpy of at most slotDataSize bytes, so a
// reader spinning this many times will virtually always observe a
// stable even version; exceeding it reports the slot as transiently
// empty rather than blocking, matching the "never blocks" contract on
// Get.
const maxReadRetries = 64

func splitHashVersion(hv uint64) (hash uint32, version uint32) {
	return uint32(hv >> 32), uint32(hv)
}

func joinHashVersion(hash, version uint32) uint64 {
	return uint64(hash)<<32 | uint64(version)
}

// slotHash returns the slot's current 32-bit key-summary hash without
// the seqlock retry dance; used by the probe policy to test for
// empty/match before committing to a full read.
func slotHash(slot []byte) uint32 {
	hv := atomicLoadUint64(slot[slotOffHashVersion : slotOffHashVersion+8])
	hash, _ := splitHashVersion(hv)
	return hash
}

func slotEmpty(slot []byte) bool {
	return slotHash(slot) == 0
}

// readSlot implements the read protocol of 4.1: load hash_version with
// acquire, extract hash/version; if version is odd (write in progress),
// retry. Copy size+data, then reload hash_version; if unchanged and
// even, return (hash, data). Otherwise retry up to maxReadRetries times.
//
// Returns ok=false for an empty slot or if the retry budget is exhausted
// while a write is continuously in progress (treated as "not found this
// cycle".
func readSlot(slot []byte) (hash uint32, data []byte, ok bool) {
	for attempt := 0; attempt < maxReadRetries; attempt++ {
		hv1 := atomicLoadUint64(slot[slotOffHashVersion : slotOffHashVersion+8])
		h, v1 := splitHashVersion(hv1)

		if h == 0 {
			return 0, nil, false
		}

		if v1%2 == 1 {
			runtime.Gosched()
			continue
		}

		size := atomicLoadUint32(slot[slotOffSize : slotOffSize+4])
		if size > slotDataSize {
			runtime.Gosched()
			continue
		}

		buf := make([]byte, size)
		copy(buf, slot[slotOffData:slotOffData+int(size)])

		hv2 := atomicLoadUint64(slot[slotOffHashVersion : slotOffHashVersion+8])
		h2, v2 := splitHashVersion(hv2)

		if h2 == h && v2 == v1 {
			return h, buf, true
		}
	}

	return 0, nil, false
}

// writeSlot implements the write protocol of 4.1. Caller holds the
// single-writer guarantee; this is not safe for concurrent writers.
func writeSlot(slot []byte, hash uint32, data []byte) {
	hv := atomicLoadUint64(slot[slotOffHashVersion : slotOffHashVersion+8])
	_, v := splitHashVersion(hv)

	// Publish odd version: write in progress.
	atomicStoreUint64(slot[slotOffHashVersion:slotOffHashVersion+8], joinHashVersion(hash, v+1))

	atomicStoreUint32(slot[slotOffSize:slotOffSize+4], uint32(len(data)))
	copy(slot[slotOffData:slotOffData+len(data)], data)

	// Commit: publish even version.
	atomicStoreUint64(slot[slotOffHashVersion:slotOffHashVersion+8], joinHashVersion(hash, v+2))
}

// clearSlot bumps the version by 2 and zeros the hash. data is
// intentionally left unscrubbed.
func clearSlot(slot []byte) {
	hv := atomicLoadUint64(slot[slotOffHashVersion : slotOffHashVersion+8])
	_, v := splitHashVersion(hv)
	atomicStoreUint64(slot[slotOffHashVersion:slotOffHashVersion+8], joinHashVersion(0, v+2))
}
