package maph

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/queelius/maph/mphf"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, slots uint64) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.maph")
	s, err := Create(path, slots, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// TestScenario1CreateSetGetStats matches the first concrete scenario:
// create a 1024-slot store, set one key, confirm get and used_slots.
func TestScenario1CreateSetGetStats(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	require.NoError(t, s.Set([]byte(`{"id":1}`), []byte("alice")))

	v, ok, err := s.Get([]byte(`{"id":1}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("alice"), v)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.UsedSlots)
	require.Equal(t, ModeStandard, stats.Mode)
}

// TestScenario2ReopenReadOnly matches the second concrete scenario: set
// 10 keys, close, reopen read-only, confirm every value round-trips and
// that writes are rejected.
func TestScenario2ReopenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.maph")

	s, err := Create(path, 256, Options{})
	require.NoError(t, err)

	keys := make([][]byte, 10)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%02d", i))
		require.NoError(t, s.Set(keys[i], []byte(fmt.Sprintf("value-%02d", i))))
	}
	require.NoError(t, s.Close())

	ro, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	for i, k := range keys {
		v, ok, err := ro.Get(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("value-%02d", i)), v)
	}

	err = ro.Set([]byte("new-key"), []byte("new-value"))
	require.ErrorIs(t, err, ErrReadOnly)
}

// TestScenario5OptimizeSwitchesToPerfect matches the fifth concrete
// scenario: fill 50 of 100 slots, optimize, and confirm perfect mode
// with every key retrievable at a slot below the key count.
func TestScenario5OptimizeSwitchesToPerfect(t *testing.T) {
	s, _ := newTestStore(t, 100)

	keys := make([][]byte, 50)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, s.Set(keys[i], []byte(fmt.Sprintf("v%03d", i))))
	}

	require.NoError(t, s.Optimize(mphf.AlgorithmCHD, mphf.Params{Seed: 1}))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, ModePerfect, stats.Mode)

	st := s.state.Load()
	for i, k := range keys {
		v, ok, err := s.Get(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("v%03d", i)), v)

		slot, ok := st.hasher.SlotFor(k)
		require.True(t, ok)
		require.Less(t, slot, uint64(50))
	}
}

// TestScenario6ValueTooLargeLeavesStateUnchanged matches the sixth
// concrete scenario: an oversized value is rejected, the previous slot
// content survives, and no journal record is appended.
func TestScenario6ValueTooLargeLeavesStateUnchanged(t *testing.T) {
	s, _ := newTestStore(t, 16)

	require.NoError(t, s.Set([]byte("k"), []byte("original")))

	oversized := make([]byte, 497)
	err := s.Set([]byte("k"), oversized)
	require.ErrorIs(t, err, ErrValueTooLarge)

	v, ok, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("original"), v)

	active := toStringSet(s.journal.ActiveKeys())
	require.Equal(t, map[string]bool{"k": true}, active)
}

// TestP1RoundTripStandard verifies P1: set then get returns the same
// value until a remove or another set.
func TestP1RoundTripStandard(t *testing.T) {
	s, _ := newTestStore(t, 32)

	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	v, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, s.Set([]byte("a"), []byte("2")))
	v, ok, err = s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

// TestP2NonExistence verifies P2: get before any set, and get after
// remove, both report absence.
func TestP2NonExistence(t *testing.T) {
	s, _ := newTestStore(t, 32)

	_, ok, err := s.Get([]byte("ghost"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set([]byte("ghost"), []byte("v")))
	require.NoError(t, s.Remove([]byte("ghost")))

	_, ok, err = s.Get([]byte("ghost"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestP3SlotReuse verifies P3: after remove, set of the same key
// succeeds and the new value is observable.
func TestP3SlotReuse(t *testing.T) {
	s, _ := newTestStore(t, 32)

	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	require.NoError(t, s.Remove([]byte("a")))
	require.NoError(t, s.Set([]byte("a"), []byte("2")))

	v, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

// TestP4JournalMatchesObservableKeys verifies P4: the active key set
// derived from the journal equals the set of keys currently observable
// via get.
func TestP4JournalMatchesObservableKeys(t *testing.T) {
	s, _ := newTestStore(t, 64)

	present := map[string][]byte{}
	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("k%d", i))
		v := []byte(fmt.Sprintf("v%d", i))
		require.NoError(t, s.Set(k, v))
		present[string(k)] = v
	}
	for i := 0; i < 20; i += 3 {
		k := []byte(fmt.Sprintf("k%d", i))
		require.NoError(t, s.Remove(k))
		delete(present, string(k))
	}

	active := toStringSet(s.journal.ActiveKeys())
	require.Equal(t, len(present), len(active))
	for k := range present {
		require.True(t, active[k])
		v, ok, err := s.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, present[k], v)
	}
}

// TestP8OptimizePreservesValues verifies P8: optimize does not change
// what get(k) returns for any key present beforehand.
func TestP8OptimizePreservesValues(t *testing.T) {
	s, _ := newTestStore(t, 64)

	values := map[string]string{}
	for i := 0; i < 30; i++ {
		k := fmt.Sprintf("key%d", i)
		v := fmt.Sprintf("val%d", i)
		require.NoError(t, s.Set([]byte(k), []byte(v)))
		values[k] = v
	}

	require.NoError(t, s.Optimize(mphf.AlgorithmRecSplit, mphf.Params{}))

	for k, v := range values {
		got, ok, err := s.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(got))
	}
}

// TestP10InvalidFormatRejection verifies P10: altering any byte of the
// 4-byte magic field makes open report invalid_format.
func TestP10InvalidFormatRejection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.maph")
	s, err := Create(path, 16, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, Options{})
	require.ErrorIs(t, err, ErrInvalidFormat)
}

// TestSetNewKeyAfterOptimizeTransitionsToHybrid verifies the documented
// perfect -> hybrid transition: a set() of a key outside the MPHF's
// build set after optimize succeeds and switches mode to hybrid rather
// than failing.
func TestSetNewKeyAfterOptimizeTransitionsToHybrid(t *testing.T) {
	s, _ := newTestStore(t, 64)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}
	require.NoError(t, s.Optimize(mphf.AlgorithmBBHash, mphf.Params{NumLevels: 2, Gamma: 2.0}))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, ModePerfect, stats.Mode)

	require.NoError(t, s.Set([]byte("brand-new-key"), []byte("brand-new-value")))

	stats, err = s.Stats()
	require.NoError(t, err)
	require.Equal(t, ModeHybrid, stats.Mode)

	v, ok, err := s.Get([]byte("brand-new-key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("brand-new-value"), v)

	v, ok, err = s.Get([]byte("k0"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

// TestOptimizeNoOpOnEmptyActiveSet verifies Optimize is a no-op (not an
// error) when the journal's active key set is empty.
func TestOptimizeNoOpOnEmptyActiveSet(t *testing.T) {
	s, _ := newTestStore(t, 16)

	require.NoError(t, s.Optimize(mphf.AlgorithmCHD, mphf.Params{}))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, ModeStandard, stats.Mode)
}

// TestClosedStoreRejectsOperations verifies that Close is idempotent and
// that Get, Set and Remove on a closed Store return ErrClosed rather than
// touching the unmapped file.
func TestClosedStoreRejectsOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.maph")
	s, err := Create(path, 16, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	_, _, err = s.Get([]byte("a"))
	require.ErrorIs(t, err, ErrClosed)

	err = s.Set([]byte("a"), []byte("2"))
	require.ErrorIs(t, err, ErrClosed)

	err = s.Remove([]byte("a"))
	require.ErrorIs(t, err, ErrClosed)
}

// TestStatsStableAcrossReopen verifies that closing a store and
// reopening it read-only reports the same Stats, using a structural
// diff so a future Stats field addition that breaks this is easy to
// spot in a test failure.
func TestStatsStableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.maph")
	s, err := Create(path, 32, Options{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i))))
	}

	before, err := s.Stats()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	after, err := ro.Stats()
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("stats changed across reopen (-before +after):\n%s", diff)
	}
}

func TestStatsStringAndLogFields(t *testing.T) {
	s, _ := newTestStore(t, 16)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))

	st, err := s.Stats()
	require.NoError(t, err)

	require.Contains(t, st.String(), "mode=standard")
	require.Contains(t, st.String(), "slots=1/16")

	fields := st.LogFields()
	require.Len(t, fields, 7)
}

func toStringSet(keys [][]byte) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[string(k)] = true
	}
	return out
}
