package mphf

import (
	"fmt"
	"math"
	"math/bits"
)

// bbhashBuilder implements BBHash: successive levels each claim the
// keys that land on a slot no other surviving key targets; collisions
// cascade to the next level. Grounded in the file-framing and
// concurrent-offset-table idiom of the opencoff BBHash DBWriter example,
// adapted here to an in-memory level/bit-array/rank construction (the
// DBWriter example wraps a BBHash it does not itself implement).
type bbhashBuilder struct {
	keyAccumulator
	numLevels int
	gamma     float64
}

func newBBHashBuilder(p Params) *bbhashBuilder {
	levels := p.NumLevels
	if levels < 1 || levels > bbhashMaxLevels {
		levels = bbhashDefaultLevels
	}
	gamma := p.Gamma
	if gamma < 1 || gamma > 10 {
		gamma = bbhashDefaultGamma
	}
	return &bbhashBuilder{numLevels: levels, gamma: gamma}
}

func (b *bbhashBuilder) Add(key []byte) error       { return b.add(key) }
func (b *bbhashBuilder) AddAll(keys [][]byte) error { return b.addAll(keys) }
func (b *bbhashBuilder) WithSeed(seed uint64) Builder {
	b.withSeed(seed)
	return b
}

type bitArray struct {
	size  uint64
	words []uint64
}

func newBitArray(size uint64) *bitArray {
	return &bitArray{size: size, words: make([]uint64, (size+63)/64)}
}

func (a *bitArray) set(i uint64) { a.words[i/64] |= 1 << (i % 64) }
func (a *bitArray) get(i uint64) bool {
	return a.words[i/64]&(1<<(i%64)) != 0
}

// rankStructure is a word-popcount prefix sum over a bitArray giving
// O(1) rank queries.
type rankStructure struct {
	prefix []uint64 // prefix[i] = popcount of words[0:i]
}

func buildRank(a *bitArray) *rankStructure {
	prefix := make([]uint64, len(a.words)+1)
	for i, w := range a.words {
		prefix[i+1] = prefix[i] + uint64(bits.OnesCount64(w))
	}
	return &rankStructure{prefix: prefix}
}

func (r *rankStructure) rank(a *bitArray, i uint64) uint64 {
	wordIdx := i / 64
	bitOff := i % 64
	masked := a.words[wordIdx] & ((uint64(1) << bitOff) - 1)
	return r.prefix[wordIdx] + uint64(bits.OnesCount64(masked))
}

type bbhashLevel struct {
	seed   uint64
	size   uint64
	bits   *bitArray
	rank   *rankStructure
	offset uint64 // cumulative keys placed in earlier levels
	count  uint64 // keys placed at this level
}

func (b *bbhashBuilder) Build() (Hasher, error) {
	keys := sortDedupKeys(b.keys)
	n := uint64(len(keys))
	if n == 0 {
		return nil, ErrEmptyInput
	}

	baseSeed := b.resolvedSeed()

	remaining := keys
	fingerprints := make([]uint64, 0, n)
	levels := make([]*bbhashLevel, 0, b.numLevels)
	overflow := newOverflowTable()
	offset := uint64(0)

	for lvl := 0; lvl < b.numLevels && len(remaining) > 0; lvl++ {
		levelSeed := baseSeed ^ (uint64(lvl+1) * recSplitC1)
		size := uint64(math.Ceil(b.gamma * float64(len(remaining))))
		if size == 0 {
			size = 1
		}

		targets := make([]uint64, len(remaining))
		counts := make(map[uint64]int, len(remaining))
		for i, k := range remaining {
			t := keyedHash(k, levelSeed, baseSeed) % size
			targets[i] = t
			counts[t]++
		}

		ba := newBitArray(size)
		var survivors [][]byte
		placedFP := make(map[uint64]uint64) // slot -> fingerprint, for this level

		for i, k := range remaining {
			if counts[targets[i]] == 1 {
				ba.set(targets[i])
				placedFP[targets[i]] = fingerprint(k)
			} else {
				survivors = append(survivors, k)
			}
		}

		rank := buildRank(ba)

		// Grow fingerprints to cover this level's dense region, then
		// fill placed entries at offset+rank(slot).
		placedCount := uint64(0)
		for slot, fp := range placedFP {
			dense := offset + rank.rank(ba, slot)
			for uint64(len(fingerprints)) <= dense {
				fingerprints = append(fingerprints, 0)
			}
			fingerprints[dense] = fp
			placedCount++
		}

		levels = append(levels, &bbhashLevel{
			seed:   levelSeed,
			size:   size,
			bits:   ba,
			rank:   rank,
			offset: offset,
			count:  placedCount,
		})

		offset += placedCount
		remaining = survivors
	}

	for _, k := range remaining {
		overflow.add(fingerprint(k), 0)
	}

	dense := uint64(len(fingerprints))
	for i := range overflow.fp {
		overflow.slot[i] = dense
		dense++
	}

	algoMem := 0
	for _, lvl := range levels {
		algoMem += len(lvl.bits.words)*8 + len(lvl.rank.prefix)*8
	}

	h := &bbhashHasher{
		base: base{
			algo:            AlgorithmBBHash,
			keyCount:        n,
			fingerprints:    fingerprints,
			overflow:        overflow,
			algoMemoryBytes: algoMem,
		},
		baseSeed: baseSeed,
		levels:   levels,
	}

	if err := h.Verify(keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildInvariant, err)
	}

	return h, nil
}

type bbhashHasher struct {
	base
	baseSeed uint64
	levels   []*bbhashLevel
}

func (h *bbhashHasher) SlotFor(key []byte) (uint64, bool) {
	fp := fingerprint(key)

	for _, lvl := range h.levels {
		t := keyedHash(key, lvl.seed, h.baseSeed) % lvl.size
		if lvl.bits.get(t) {
			dense := lvl.offset + lvl.rank.rank(lvl.bits, t)
			if dense < uint64(len(h.fingerprints)) && h.fingerprints[dense] == fp {
				return dense, true
			}
			break
		}
	}

	if slot, ok := h.overflow.find(fp); ok {
		return slot, true
	}

	return 0, false
}

func (h *bbhashHasher) Hash(key []byte) uint64 {
	return hashFromSlotFor(h, h.keyCount, key)
}

func (h *bbhashHasher) IsPerfectFor(key []byte) bool {
	return isPerfectFromSlotFor(h, uint64(len(h.fingerprints)), key)
}

func (h *bbhashHasher) Verify(keys [][]byte) error {
	return verifyBijection(h, keys)
}

func (h *bbhashHasher) Serialize() []byte {
	buf := make([]byte, commonHeaderSize)
	encodeHeader(buf, AlgorithmBBHash)

	var hdr [16]byte
	putLE64(hdr[0:8], h.baseSeed)
	putLE64(hdr[8:16], uint64(len(h.levels)))
	buf = append(buf, hdr[:]...)

	for _, lvl := range h.levels {
		var lb [24]byte
		putLE64(lb[0:8], lvl.seed)
		putLE64(lb[8:16], lvl.size)
		putLE64(lb[16:24], lvl.offset)
		buf = append(buf, lb[:]...)
		buf = putUint64Slice(buf, lvl.bits.words)
	}

	buf = putUint64Slice(buf, h.fingerprints)
	buf = h.overflow.serialize(buf)

	var countBuf [8]byte
	putLE64(countBuf[:], h.keyCount)
	buf = append(buf, countBuf[:]...)

	return buf
}

func deserializeBBHash(hdr commonHeader, body []byte) (Hasher, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("%w: truncated bbhash header", ErrInvalidFormat)
	}

	baseSeed := getLE64(body[0:8])
	numLevels := getLE64(body[8:16])
	body = body[16:]

	levels := make([]*bbhashLevel, 0, numLevels)
	for i := uint64(0); i < numLevels; i++ {
		if len(body) < 24 {
			return nil, fmt.Errorf("%w: truncated bbhash level header", ErrInvalidFormat)
		}
		seed := getLE64(body[0:8])
		size := getLE64(body[8:16])
		offset := getLE64(body[16:24])
		body = body[24:]

		words, rest, err := takeUint64Slice(body)
		if err != nil {
			return nil, err
		}
		body = rest

		ba := &bitArray{size: size, words: words}
		rank := buildRank(ba)
		count := rank.prefix[len(rank.prefix)-1]

		levels = append(levels, &bbhashLevel{seed: seed, size: size, bits: ba, rank: rank, offset: offset, count: count})
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
		return nil, fmt.Errorf("%w: truncated bbhash trailer", ErrInvalidFormat)
	}
	keyCount := getLE64(body[0:8])

	return &bbhashHasher{
		base: base{
			algo:         AlgorithmBBHash,
			keyCount:     keyCount,
			fingerprints: fingerprints,
			overflow:     overflow,
		},
		baseSeed: baseSeed,
		levels:   levels,
	}, nil
}
