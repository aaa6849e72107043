package maph

// probeSequence returns up to maxProbeLength slot indices starting at
// start, visiting increasing indices in order and wrapping around
// total. Bounded to K=10 probes regardless of total.
func probeSequence(start, total uint64) []uint64 {
	n := uint64(maxProbeLength)
	if total < n {
		n = total
	}

	seq := make([]uint64, n)
	for i := range seq {
		seq[i] = (start + uint64(i)) % total
	}

	return seq
}
