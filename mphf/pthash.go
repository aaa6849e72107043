package mphf

import (
	"fmt"
	"math"
	"sort"
)

// pthashBuilder implements PTHash: keys are partitioned into N
// one-per-key-conservative groups, sorted by descending size, and each
// group searches a 16-bit pilot combined with the key's hash via a
// SplitMix-style mix rather than a plain add (distinguishing it from
// CHD's displacement search).
type pthashBuilder struct {
	keyAccumulator
	alpha float64
}

func newPTHashBuilder(p Params) *pthashBuilder {
	alpha := p.Alpha
	if alpha < 0.80 || alpha > 0.99 {
		alpha = pthashDefaultAlpha
	}
	return &pthashBuilder{alpha: alpha}
}

func (b *pthashBuilder) Add(key []byte) error       { return b.add(key) }
func (b *pthashBuilder) AddAll(keys [][]byte) error { return b.addAll(keys) }
func (b *pthashBuilder) WithSeed(seed uint64) Builder {
	b.withSeed(seed)
	return b
}

type pthashGroup struct {
	id   uint64
	keys [][]byte
}

// pthashPlacement records a key's fingerprint at the absolute table
// slot its group's pilot assigned it, before the sparse table is
// compacted into a dense [0, perfectCount) index via rank.
type pthashPlacement struct {
	slot uint64
	fp   uint64
}

func (b *pthashBuilder) Build() (Hasher, error) {
	keys := sortDedupKeys(b.keys)
	n := uint64(len(keys))
	if n == 0 {
		return nil, ErrEmptyInput
	}

	seed := b.resolvedSeed()
	tableSize := uint64(math.Ceil(float64(n) / b.alpha))
	if tableSize < n {
		tableSize = n
	}

	groups := make(map[uint64]*pthashGroup)
	for _, k := range keys {
		gid := fastHash(k, seed) % n
		g, ok := groups[gid]
		if !ok {
			g = &pthashGroup{id: gid}
			groups[gid] = g
		}
		g.keys = append(g.keys, k)
	}

	ordered := make([]*pthashGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i].keys) != len(ordered[j].keys) {
			return len(ordered[i].keys) > len(ordered[j].keys)
		}
		return ordered[i].id < ordered[j].id
	})

	occupied := newBitArray(tableSize)
	pilot := make(map[uint64]uint32, len(ordered))
	placements := make([]pthashPlacement, 0, n)
	overflow := newOverflowTable()

	for _, g := range ordered {
		placed := false

		for p := uint32(0); p < pthashPilotBound; p++ {
			candidates := make([]uint64, len(g.keys))
			collide := false
			localSeen := make(map[uint64]struct{}, len(g.keys))

			for i, k := range g.keys {
				h := fastHash(k, seed)
				s := mix64(h, uint64(p)) % tableSize
				if _, dup := localSeen[s]; dup {
					collide = true
					break
				}
				localSeen[s] = struct{}{}
				if occupied.get(s) {
					collide = true
					break
				}
				candidates[i] = s
			}

			if collide {
				continue
			}

			for i, k := range g.keys {
				occupied.set(candidates[i])
				placements = append(placements, pthashPlacement{slot: candidates[i], fp: fingerprint(k)})
			}
			pilot[g.id] = p

			placed = true
			break
		}

		if !placed {
			for _, k := range g.keys {
				overflow.add(fingerprint(k), 0)
			}
		}
	}

	rank := buildRank(occupied)

	fingerprints := make([]uint64, len(placements))
	for _, p := range placements {
		fingerprints[rank.rank(occupied, p.slot)] = p.fp
	}

	dense := uint64(len(fingerprints))
	for i := range overflow.fp {
		overflow.slot[i] = dense
		dense++
	}

	h := &pthashHasher{
		base: base{
			algo:            AlgorithmPTHash,
			keyCount:        n,
			fingerprints:    fingerprints,
			overflow:        overflow,
			algoMemoryBytes: len(occupied.words)*8 + len(rank.prefix)*8 + len(pilot)*12,
		},
		seed:      seed,
		n:         n,
		tableSize: tableSize,
		pilot:     pilot,
		occupied:  occupied,
		rank:      rank,
	}

	if err := h.Verify(keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildInvariant, err)
	}

	return h, nil
}

// pthashHasher reconstructs a key's slot at query time from its
// group's stored pilot, mirroring the search that placed it: group id,
// pilot-mixed candidate slot, rank of that slot within the occupied
// bitmap gives the dense fingerprint index.
type pthashHasher struct {
	base
	seed      uint64
	n         uint64
	tableSize uint64
	pilot     map[uint64]uint32
	occupied  *bitArray
	rank      *rankStructure
}

func (h *pthashHasher) SlotFor(key []byte) (uint64, bool) {
	fp := fingerprint(key)

	gid := fastHash(key, h.seed) % h.n
	if p, ok := h.pilot[gid]; ok {
		hv := fastHash(key, h.seed)
		s := mix64(hv, uint64(p)) % h.tableSize
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

func (h *pthashHasher) Hash(key []byte) uint64 {
	return hashFromSlotFor(h, h.keyCount, key)
}

func (h *pthashHasher) IsPerfectFor(key []byte) bool {
	return isPerfectFromSlotFor(h, uint64(len(h.fingerprints)), key)
}

func (h *pthashHasher) Verify(keys [][]byte) error {
	return verifyBijection(h, keys)
}

func (h *pthashHasher) Serialize() []byte {
	buf := make([]byte, commonHeaderSize)
	encodeHeader(buf, AlgorithmPTHash)

	var hdr [24]byte
	putLE64(hdr[0:8], h.seed)
	putLE64(hdr[8:16], h.n)
	putLE64(hdr[16:24], h.tableSize)
	buf = append(buf, hdr[:]...)

	gids := make([]uint64, 0, len(h.pilot))
	pilots := make([]uint32, 0, len(h.pilot))
	for gid, p := range h.pilot {
		gids = append(gids, gid)
		pilots = append(pilots, p)
	}
	buf = putUint64Slice(buf, gids)
	buf = putUint32Slice(buf, pilots)

	buf = putUint64Slice(buf, h.occupied.words)
	buf = putUint64Slice(buf, h.fingerprints)
	buf = h.overflow.serialize(buf)

	var countBuf [8]byte
	putLE64(countBuf[:], h.keyCount)
	buf = append(buf, countBuf[:]...)

	return buf
}

func deserializePTHash(hdr commonHeader, body []byte) (Hasher, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("%w: truncated pthash header", ErrInvalidFormat)
	}

	seed := getLE64(body[0:8])
	n := getLE64(body[8:16])
	tableSize := getLE64(body[16:24])
	body = body[24:]

	gids, body, err := takeUint64Slice(body)
	if err != nil {
		return nil, err
	}
	pilots, body, err := takeUint32Slice(body)
	if err != nil {
		return nil, err
	}
	if len(gids) != len(pilots) {
		return nil, fmt.Errorf("%w: pthash pilot table length mismatch", ErrInvalidFormat)
	}
	pilot := make(map[uint64]uint32, len(gids))
	for i, gid := range gids {
		pilot[gid] = pilots[i]
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
		return nil, fmt.Errorf("%w: truncated pthash trailer", ErrInvalidFormat)
	}
	keyCount := getLE64(body[0:8])

	return &pthashHasher{
		base: base{
			algo:         AlgorithmPTHash,
			keyCount:     keyCount,
			fingerprints: fingerprints,
			overflow:     overflow,
		},
		seed:      seed,
		n:         n,
		tableSize: tableSize,
		pilot:     pilot,
		occupied:  occupied,
		rank:      rank,
	}, nil
}
