package mphf

import "fmt"

// recSplitBuilder implements RecSplit: keys are partitioned into
// buckets, and each small-enough bucket searches a local split seed
// that places every member of the bucket at a unique local slot.
// Buckets are independent of one another, so placement is
// embarrassingly parallel across buckets; this implementation processes
// them sequentially, which preserves determinism trivially, and leaves
// the parallel variant as a later enhancement over the same per-bucket
// function.
type recSplitBuilder struct {
	keyAccumulator
	leafSize int
}

func newRecSplitBuilder(p Params) *recSplitBuilder {
	leaf := p.LeafSize
	if leaf < 4 || leaf > 16 {
		leaf = recSplitDefaultLeaf
	}
	return &recSplitBuilder{leafSize: leaf}
}

func (b *recSplitBuilder) Add(key []byte) error       { return b.add(key) }
func (b *recSplitBuilder) AddAll(keys [][]byte) error { return b.addAll(keys) }
func (b *recSplitBuilder) WithSeed(seed uint64) Builder {
	b.withSeed(seed)
	return b
}

func (b *recSplitBuilder) Build() (Hasher, error) {
	keys := sortDedupKeys(b.keys)
	n := uint64(len(keys))
	if n == 0 {
		return nil, ErrEmptyInput
	}

	baseSeed := b.resolvedSeed()

	numBuckets := uint64(4*int(n)) / uint64(b.leafSize)
	if numBuckets == 0 {
		numBuckets = 1
	}

	type bucket struct {
		idx  uint64
		keys [][]byte
	}
	buckets := make(map[uint64]*bucket)
	for _, k := range keys {
		bid := fastHash(k, baseSeed) % numBuckets
		bk, ok := buckets[bid]
		if !ok {
			bk = &bucket{idx: bid}
			buckets[bid] = bk
		}
		bk.keys = append(bk.keys, k)
	}

	maxBucketKeys := recSplitMaxBucket * b.leafSize

	fingerprints := make([]uint64, 0, n)
	overflow := newOverflowTable()

	bucketIdxs := make([]uint64, 0, len(buckets))
	bucketSeeds := make([]uint64, 0, len(buckets))
	bucketSizes := make([]uint64, 0, len(buckets))
	bucketOffsets := make([]uint64, 0, len(buckets))

	// Deterministic traversal order: ascending bucket index.
	orderedIdx := make([]uint64, 0, len(buckets))
	for bid := range buckets {
		orderedIdx = append(orderedIdx, bid)
	}
	sortUint64(orderedIdx)

	offset := uint64(0)

	for _, bid := range orderedIdx {
		bk := buckets[bid]

		if len(bk.keys) > maxBucketKeys {
			for _, k := range bk.keys {
				overflow.add(fingerprint(k), 0)
			}
			continue
		}

		placedSeed, localSlots, ok := recSplitSearchSeed(bk.keys, baseSeed, bid, b.leafSize)
		if !ok {
			for _, k := range bk.keys {
				overflow.add(fingerprint(k), 0)
			}
			continue
		}

		bucketIdxs = append(bucketIdxs, bid)
		bucketSeeds = append(bucketSeeds, placedSeed)
		bucketSizes = append(bucketSizes, uint64(len(bk.keys)))
		bucketOffsets = append(bucketOffsets, offset)

		// Place fingerprints at their global dense slot, which is
		// offset + localSlot; fingerprints is grown sparsely here so it
		// must be sized up front.
		for len(fingerprints) < int(offset)+len(bk.keys) {
			fingerprints = append(fingerprints, 0)
		}
		for i, k := range bk.keys {
			fingerprints[int(offset)+localSlots[i]] = fingerprint(k)
		}

		offset += uint64(len(bk.keys))
	}

	dense := uint64(len(fingerprints))
	for i := range overflow.fp {
		overflow.slot[i] = dense
		dense++
	}

	h := &recSplitHasher{
		base: base{
			algo:            AlgorithmRecSplit,
			keyCount:        n,
			fingerprints:    fingerprints,
			overflow:        overflow,
			algoMemoryBytes: len(bucketIdxs) * 32,
		},
		baseSeed:      baseSeed,
		numBuckets:    numBuckets,
		leafSize:      b.leafSize,
		bucketIdx:     bucketIdxs,
		bucketSeed:    bucketSeeds,
		bucketSize:    bucketSizes,
		bucketOffset:  bucketOffsets,
	}
	h.buildIndex()

	if err := h.Verify(keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildInvariant, err)
	}

	return h, nil
}

// recSplitSearchSeed searches split seeds s in [0, recSplitSeedBound)
// until hash0(key, base_seed XOR bucket_idx*C1 XOR s*C2) mod |bucket|
// assigns every key in the bucket a distinct local slot.
func recSplitSearchSeed(keys [][]byte, baseSeed, bucketIdx uint64, _ int) (uint64, []int, bool) {
	n := len(keys)

	for s := uint64(0); s < recSplitSeedBound; s++ {
		seed := rotatingSeed(baseSeed, bucketIdx, s)
		seen := make([]bool, n)
		slots := make([]int, n)
		ok := true

		for i, k := range keys {
			local := int(fastHash(k, seed) % uint64(n))
			if seen[local] {
				ok = false
				break
			}
			seen[local] = true
			slots[i] = local
		}

		if ok {
			return s, slots, true
		}
	}

	return 0, nil, false
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

type recSplitHasher struct {
	base
	baseSeed     uint64
	numBuckets   uint64
	leafSize     int
	bucketIdx    []uint64
	bucketSeed   []uint64
	bucketSize   []uint64
	bucketOffset []uint64

	index map[uint64]int // bucket idx -> position in parallel arrays
}

func (h *recSplitHasher) buildIndex() {
	h.index = make(map[uint64]int, len(h.bucketIdx))
	for i, bid := range h.bucketIdx {
		h.index[bid] = i
	}
}

func (h *recSplitHasher) SlotFor(key []byte) (uint64, bool) {
	fp := fingerprint(key)

	bid := fastHash(key, h.baseSeed) % h.numBuckets
	if pos, ok := h.index[bid]; ok {
		seed := rotatingSeed(h.baseSeed, bid, h.bucketSeed[pos])
		local := fastHash(key, seed) % h.bucketSize[pos]
		global := h.bucketOffset[pos] + local
		if global < uint64(len(h.fingerprints)) && h.fingerprints[global] == fp {
			return global, true
		}
	}

	if slot, ok := h.overflow.find(fp); ok {
		return slot, true
	}

	return 0, false
}

func (h *recSplitHasher) Hash(key []byte) uint64 {
	return hashFromSlotFor(h, h.keyCount, key)
}

func (h *recSplitHasher) IsPerfectFor(key []byte) bool {
	return isPerfectFromSlotFor(h, uint64(len(h.fingerprints)), key)
}

func (h *recSplitHasher) Verify(keys [][]byte) error {
	return verifyBijection(h, keys)
}

func (h *recSplitHasher) Serialize() []byte {
	buf := make([]byte, commonHeaderSize)
	encodeHeader(buf, AlgorithmRecSplit)

	var hdr [24]byte
	putLE64(hdr[0:8], h.baseSeed)
	putLE64(hdr[8:16], h.numBuckets)
	putLE64(hdr[16:24], uint64(h.leafSize))
	buf = append(buf, hdr[:]...)

	buf = putUint64Slice(buf, h.bucketIdx)
	buf = putUint64Slice(buf, h.bucketSeed)
	buf = putUint64Slice(buf, h.bucketSize)
	buf = putUint64Slice(buf, h.bucketOffset)
	buf = putUint64Slice(buf, h.fingerprints)
	buf = h.overflow.serialize(buf)

	var countBuf [8]byte
	putLE64(countBuf[:], h.keyCount)
	buf = append(buf, countBuf[:]...)

	return buf
}

func deserializeRecSplit(hdr commonHeader, body []byte) (Hasher, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("%w: truncated recsplit header", ErrInvalidFormat)
	}

	baseSeed := getLE64(body[0:8])
	numBuckets := getLE64(body[8:16])
	leafSize := int(getLE64(body[16:24]))
	body = body[24:]

	bucketIdx, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	bucketSeed, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	bucketSize, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	bucketOffset, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	fingerprints, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	overflow, body, err := deserializeOverflow(body)
	if err != nil {
		return nil, err
	}
	if len(body) < 8 {
		return nil, fmt.Errorf("%w: truncated recsplit trailer", ErrInvalidFormat)
	}
	keyCount := getLE64(body[0:8])

	h := &recSplitHasher{
		base: base{
			algo:         AlgorithmRecSplit,
			keyCount:     keyCount,
			fingerprints: fingerprints,
			overflow:     overflow,
		},
		baseSeed:     baseSeed,
		numBuckets:   numBuckets,
		leafSize:     leafSize,
		bucketIdx:    bucketIdx,
		bucketSeed:   bucketSeed,
		bucketSize:   bucketSize,
		bucketOffset: bucketOffset,
	}
	h.buildIndex()

	return h, nil
}
