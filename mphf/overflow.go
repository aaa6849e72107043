package mphf

// overflowTable holds the keys an algorithm could not place
// collision-free, as parallel fingerprint/slot arrays searched linearly
// at query time. Expected to hold far less than 1% of keys for a
// well-parameterized builder, so a plain scan is preferred over a
// secondary hash table.
type overflowTable struct {
	fp   []uint64
	slot []uint64
}

func newOverflowTable() *overflowTable {
	return &overflowTable{}
}

// add records that the key with fingerprint fp was assigned slot.
func (o *overflowTable) add(fp, slot uint64) {
	o.fp = append(o.fp, fp)
	o.slot = append(o.slot, slot)
}

// find performs a batched-compare linear scan: unrolled by 4 so a
// compiler targeting amd64/arm64 can auto-vectorize the comparison;
// there is no portable way to request a 256-bit SIMD compare from pure
// Go, so this unrolled scalar loop is the portable fallback.
func (o *overflowTable) find(fp uint64) (uint64, bool) {
	n := len(o.fp)
	i := 0

	for ; i+4 <= n; i += 4 {
		if o.fp[i] == fp {
			return o.slot[i], true
		}
		if o.fp[i+1] == fp {
			return o.slot[i+1], true
		}
		if o.fp[i+2] == fp {
			return o.slot[i+2], true
		}
		if o.fp[i+3] == fp {
			return o.slot[i+3], true
		}
	}

	for ; i < n; i++ {
		if o.fp[i] == fp {
			return o.slot[i], true
		}
	}

	return 0, false
}

func (o *overflowTable) len() int {
	return len(o.fp)
}

// memoryBytes estimates the bytes occupied by the overflow arrays for
// Stats.MemoryBytes: two uint64 slices.
func (o *overflowTable) memoryBytes() int {
	return len(o.fp)*8 + len(o.slot)*8
}

func (o *overflowTable) serialize(dst []byte) []byte {
	dst = putUint64Slice(dst, o.fp)
	dst = putUint64Slice(dst, o.slot)
	return dst
}

func deserializeOverflow(buf []byte) (*overflowTable, []byte, error) {
	fp, buf, err := takeUint64Slice(buf)
	if err != nil {
		return nil, nil, err
	}

	slot, buf, err := takeUint64Slice(buf)
	if err != nil {
		return nil, nil, err
	}

	return &overflowTable{fp: fp, slot: slot}, buf, nil
}
