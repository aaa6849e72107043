package mphf

import (
	"fmt"
	"math"
	"sort"
)

// chdBuilder implements the CHD (Compress, Hash and Displace)
// construction, grounded in opencoff-go-chd's ChdBuilder.Freeze: buckets
// are sorted by descending occupancy and each searches a displacement
// that avoids collisions against a shared occupancy bitmap.
type chdBuilder struct {
	keyAccumulator
	lambda float64
}

func newCHDBuilder(p Params) *chdBuilder {
	lambda := p.Lambda
	if lambda <= 0 {
		lambda = chdDefaultLambda
	}
	return &chdBuilder{lambda: lambda}
}

func (b *chdBuilder) Add(key []byte) error       { return b.add(key) }
func (b *chdBuilder) AddAll(keys [][]byte) error { return b.addAll(keys) }
func (b *chdBuilder) WithSeed(seed uint64) Builder {
	b.withSeed(seed)
	return b
}

type chdBucket struct {
	id   uint64
	keys [][]byte
}

// chdPlacement records a key's fingerprint at the absolute table slot
// its bucket's displacement assigned it, before the sparse table is
// compacted into a dense [0, perfectCount) index via rank.
type chdPlacement struct {
	slot uint64
	fp   uint64
}

func (b *chdBuilder) Build() (Hasher, error) {
	keys := sortDedupKeys(b.keys)
	n := uint64(len(keys))
	if n == 0 {
		return nil, ErrEmptyInput
	}

	seed := b.resolvedSeed()
	numBuckets := uint64(math.Ceil(float64(n) / b.lambda))
	if numBuckets == 0 {
		numBuckets = 1
	}
	tableSize := uint64(math.Ceil(2 * float64(n)))
	if tableSize < n {
		tableSize = n
	}

	buckets := make(map[uint64]*chdBucket)
	for _, k := range keys {
		bid := keyedHash(k, 0, seed) % numBuckets
		bk, ok := buckets[bid]
		if !ok {
			bk = &chdBucket{id: bid}
			buckets[bid] = bk
		}
		bk.keys = append(bk.keys, k)
	}

	ordered := make([]*chdBucket, 0, len(buckets))
	for _, bk := range buckets {
		ordered = append(ordered, bk)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i].keys) != len(ordered[j].keys) {
			return len(ordered[i].keys) > len(ordered[j].keys)
		}
		return ordered[i].id < ordered[j].id
	})

	const maxDisplacement = 1 << 16

	occupied := newBitArray(tableSize)
	displacement := make(map[uint64]uint32, len(ordered))
	placements := make([]chdPlacement, 0, n)
	overflow := newOverflowTable()

	for _, bk := range ordered {
		placed := false

		for d := uint32(0); d < maxDisplacement; d++ {
			candidates := make([]uint64, len(bk.keys))
			collideLocal := false
			localSeen := make(map[uint64]struct{}, len(bk.keys))

			for i, k := range bk.keys {
				s := (keyedHash(k, 1, seed) + uint64(d)) % tableSize
				if _, dup := localSeen[s]; dup {
					collideLocal = true
					break
				}
				localSeen[s] = struct{}{}
				if occupied.get(s) {
					collideLocal = true
					break
				}
				candidates[i] = s
			}

			if collideLocal {
				continue
			}

			for i, k := range bk.keys {
				occupied.set(candidates[i])
				placements = append(placements, chdPlacement{slot: candidates[i], fp: fingerprint(k)})
			}
			displacement[bk.id] = d

			placed = true
			break
		}

		if !placed {
			for _, k := range bk.keys {
				overflow.add(fingerprint(k), 0)
			}
		}
	}

	rank := buildRank(occupied)

	fingerprints := make([]uint64, len(placements))
	for _, p := range placements {
		fingerprints[rank.rank(occupied, p.slot)] = p.fp
	}

	// Overflow slots get dense indices continuing after the perfect
	// region, preserving the invariant that every input key maps to a
	// unique index in [0, key_count).
	dense := uint64(len(fingerprints))
	for i := range overflow.fp {
		overflow.slot[i] = dense
		dense++
	}

	h := &chdHasher{
		base: base{
			algo:            AlgorithmCHD,
			keyCount:        n,
			fingerprints:    fingerprints,
			overflow:        overflow,
			algoMemoryBytes: len(occupied.words)*8 + len(rank.prefix)*8 + len(displacement)*12,
		},
		seed:         seed,
		tableSize:    tableSize,
		numBuckets:   numBuckets,
		displacement: displacement,
		occupied:     occupied,
		rank:         rank,
	}

	if err := h.Verify(keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildInvariant, err)
	}

	return h, nil
}

// chdHasher reconstructs a key's slot at query time from its bucket's
// stored displacement, mirroring the search that placed it: bucket id,
// displaced candidate slot, rank of that slot within the occupied
// bitmap gives the dense fingerprint index.
type chdHasher struct {
	base
	seed         uint64
	tableSize    uint64
	numBuckets   uint64
	displacement map[uint64]uint32
	occupied     *bitArray
	rank         *rankStructure
}

func (h *chdHasher) SlotFor(key []byte) (uint64, bool) {
	fp := fingerprint(key)

	bid := keyedHash(key, 0, h.seed) % h.numBuckets
	if d, ok := h.displacement[bid]; ok {
		s := (keyedHash(key, 1, h.seed) + uint64(d)) % h.tableSize
		if h.occupied.get(s) {
			dense := h.rank.rank(h.occupied, s)
			if dense < uint64(len(h.fingerprints)) && h.fingerprints[dense] == fp {
				return dense, true
			}
		}
	}

	if slot, ok := h.overflow.find(fp); ok {
		return slot, true
	}

	return 0, false
}

func (h *chdHasher) Hash(key []byte) uint64 {
	return hashFromSlotFor(h, h.keyCount, key)
}

func (h *chdHasher) IsPerfectFor(key []byte) bool {
	return isPerfectFromSlotFor(h, uint64(len(h.fingerprints)), key)
}

func (h *chdHasher) Verify(keys [][]byte) error {
	return verifyBijection(h, keys)
}

func (h *chdHasher) Serialize() []byte {
	buf := make([]byte, commonHeaderSize)
	encodeHeader(buf, AlgorithmCHD)

	var hdr [24]byte
	putLE64(hdr[0:8], h.seed)
	putLE64(hdr[8:16], h.tableSize)
	putLE64(hdr[16:24], h.numBuckets)
	buf = append(buf, hdr[:]...)

	bucketIDs := make([]uint64, 0, len(h.displacement))
	disps := make([]uint32, 0, len(h.displacement))
	for id, d := range h.displacement {
		bucketIDs = append(bucketIDs, id)
		disps = append(disps, d)
	}
	buf = putUint64Slice(buf, bucketIDs)
	buf = putUint32Slice(buf, disps)

	buf = putUint64Slice(buf, h.occupied.words)
	buf = putUint64Slice(buf, h.fingerprints)
	buf = h.overflow.serialize(buf)

	var countBuf [8]byte
	putLE64(countBuf[:], h.keyCount)
	buf = append(buf, countBuf[:]...)

	return buf
}

func deserializeCHD(hdr commonHeader, body []byte) (Hasher, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("%w: truncated chd header", ErrInvalidFormat)
	}

	seed := getLE64(body[0:8])
	tableSize := getLE64(body[8:16])
	numBuckets := getLE64(body[16:24])
	body = body[24:]

	bucketIDs, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	disps, body, err := takeUint32Slice(body)
	if err != nil {
		return nil, err
	}
	if len(bucketIDs) != len(disps) {
		return nil, fmt.Errorf("%w: chd displacement table length mismatch", ErrInvalidFormat)
	}

	displacement := make(map[uint64]uint32, len(bucketIDs))
	for i, id := range bucketIDs {
		displacement[id] = disps[i]
	}

	words, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	occupied := &bitArray{size: tableSize, words: words}
	rank := buildRank(occupied)

	fingerprints, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}

	overflow, body, err := deserializeOverflow(body)
	if err != nil {
		return nil, err
	}

	if len(body) < 8 {
		return nil, fmt.Errorf("%w: truncated chd trailer", ErrInvalidFormat)
	}
	keyCount := getLE64(body[0:8])

	return &chdHasher{
		base: base{
			algo:         AlgorithmCHD,
			keyCount:     keyCount,
			fingerprints: fingerprints,
			overflow:     overflow,
		},
		seed:         seed,
		tableSize:    tableSize,
		numBuckets:   numBuckets,
		displacement: displacement,
		occupied:     occupied,
		rank:         rank,
	}, nil
}
