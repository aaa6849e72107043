package mphf

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func allAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmRecSplit, AlgorithmCHD, AlgorithmBBHash, AlgorithmPTHash, AlgorithmFCH}
}

func keySet(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%06d", i))
	}
	return keys
}

// TestP5Bijection verifies that every builder produces a bijection from
// its input key set onto [0, |S|), and that every input key satisfies
// IsPerfectFor or at least resolves via overflow.
func TestP5Bijection(t *testing.T) {
	for _, algo := range allAlgorithms() {
		algo := algo
		t.Run(algo.String(), func(t *testing.T) {
			keys := keySet(200)

			b, err := NewBuilder(algo, Params{Seed: 42})
			require.NoError(t, err)
			require.NoError(t, b.AddAll(keys))

			h, err := b.Build()
			require.NoError(t, err)

			require.NoError(t, h.Verify(keys))

			stats := h.Statistics()
			require.Equal(t, len(keys), stats.KeyCount)

			for _, k := range keys {
				_, ok := h.SlotFor(k)
				require.True(t, ok, "key %s should resolve", k)
			}

			unknown := []byte("definitely-not-a-member-of-the-set")
			_, ok := h.SlotFor(unknown)
			require.False(t, ok)
		})
	}
}

// TestP6Determinism verifies that two builds with the same input and
// seed produce identical slot_for results for every input key.
func TestP6Determinism(t *testing.T) {
	for _, algo := range allAlgorithms() {
		algo := algo
		t.Run(algo.String(), func(t *testing.T) {
			keys := keySet(150)

			build := func() Hasher {
				b, err := NewBuilder(algo, Params{})
				require.NoError(t, err)
				require.NoError(t, b.AddAll(keys))
				b.WithSeed(7)
				h, err := b.Build()
				require.NoError(t, err)
				return h
			}

			h1 := build()
			h2 := build()

			for _, k := range keys {
				s1, ok1 := h1.SlotFor(k)
				s2, ok2 := h2.SlotFor(k)
				require.Equal(t, ok1, ok2)
				require.Equal(t, s1, s2)
			}
		})
	}
}

// TestP7SerializationRoundTrip verifies deserialize(serialize(H)) agrees
// with H on every input key.
func TestP7SerializationRoundTrip(t *testing.T) {
	for _, algo := range allAlgorithms() {
		algo := algo
		t.Run(algo.String(), func(t *testing.T) {
			keys := keySet(120)

			b, err := NewBuilder(algo, Params{Seed: 99})
			require.NoError(t, err)
			require.NoError(t, b.AddAll(keys))

			h, err := b.Build()
			require.NoError(t, err)

			buf := h.Serialize()
			h2, err := Deserialize(buf)
			require.NoError(t, err)

			for _, k := range keys {
				s1, ok1 := h.SlotFor(k)
				s2, ok2 := h2.SlotFor(k)
				require.Equal(t, ok1, ok2)
				require.Equal(t, s1, s2)
			}
		})
	}
}

// TestBuildEmptyFails verifies Build fails only on an empty key set.
func TestBuildEmptyFails(t *testing.T) {
	for _, algo := range allAlgorithms() {
		algo := algo
		t.Run(algo.String(), func(t *testing.T) {
			b, err := NewBuilder(algo, Params{})
			require.NoError(t, err)

			_, err = b.Build()
			require.ErrorIs(t, err, ErrEmptyInput)
		})
	}
}

// TestScenario3RecSplitFiveKeys builds a RecSplit MPHF over
// {"a","b","c","d","e"} and checks every key gets a distinct slot in
// range while an absent key resolves to none.
func TestScenario3RecSplitFiveKeys(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}

	b, err := NewBuilder(AlgorithmRecSplit, Params{})
	require.NoError(t, err)
	require.NoError(t, b.AddAll(keys))

	h, err := b.Build()
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	for _, k := range keys {
		s, ok := h.SlotFor(k)
		require.True(t, ok)
		require.Less(t, s, uint64(5))
		require.False(t, seen[s], "slot %d assigned twice", s)
		seen[s] = true
	}

	_, ok := h.SlotFor([]byte("zz"))
	require.False(t, ok)
}

// TestScenario4BBHashRankMatchesPopcount builds a BBHash MPHF over 1000
// 16-byte keys and checks the bijection holds and that rank matches
// popcount over each bit array prefix.
func TestScenario4BBHashRankMatchesPopcount(t *testing.T) {
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%016d", i))
	}

	b, err := NewBuilder(AlgorithmBBHash, Params{NumLevels: 3, Gamma: 2.0})
	require.NoError(t, err)
	require.NoError(t, b.AddAll(keys))

	h, err := b.Build()
	require.NoError(t, err)
	hh := h.(*bbhashHasher)

	require.NoError(t, h.Verify(keys))

	for _, lvl := range hh.levels {
		var running uint64
		for wordIdx, w := range lvl.bits.words {
			require.Equal(t, running, lvl.rank.prefix[wordIdx])
			running += uint64(popcount(w))
		}
	}
}

func popcount(x uint64) int {
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}
