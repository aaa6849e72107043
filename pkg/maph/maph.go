// Package maph implements a persistent, memory-mapped key-value store
// tuned for sub-microsecond point lookups of short values. It supports
// a standard mode (FNV-1a hashing with bounded linear probing) and an
// optimized mode where a precomputed minimal perfect hash function
// resolves a key to its slot in a single memory access.
package maph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/queelius/maph/mphf"
	"github.com/queelius/maph/pkg/maph/journal"
	"go.uber.org/zap"
)

// Options configures Create and Open.
type Options struct {
	// ReadOnly opens the store for reads only; all mutating methods
	// return ErrReadOnly.
	ReadOnly bool

	// DisableLocking skips both the in-process writer registry and the
	// cross-process flock. Use only when the caller already serializes
	// writer access some other way.
	DisableLocking bool

	// Logger, if non-nil, receives structured events around mode
	// transitions (Optimize). Never called on the Get/Set hot path.
	Logger *zap.Logger
}

// dispatchState is the unit of the exclusive handoff described by the
// design notes: Optimize builds a new state and atomically swaps the
// pointer, so readers always see either the complete old state or the
// complete new one, never a partial mix of mode and hasher.
type dispatchState struct {
	mode   Mode
	algo   mphf.Algorithm
	hasher mphf.Hasher
}

// Store is a handle to an open maph database.
type Store struct {
	mu sync.RWMutex // guards closed; data path is lock-free past this

	store   *mmapStore
	journal *journal.Journal
	wl      *writerLock

	state atomic.Pointer[dispatchState]

	opts   Options
	path   string
	closed bool
}

// Create creates a new store file at path with slotCount slots, in
// standard mode with no MPHF.
func Create(path string, slotCount uint64, opts Options) (*Store, error) {
	if slotCount == 0 {
		return nil, fmt.Errorf("%w: slot_count must be > 0", ErrInvalidFormat)
	}

	ms, err := createStore(path, slotCount)
	if err != nil {
		return nil, err
	}

	return newStore(ms, path, opts)
}

// Open opens an existing store file at path.
func Open(path string, opts Options) (*Store, error) {
	ms, err := openStore(path, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	return newStore(ms, path, opts)
}

func newStore(ms *mmapStore, path string, opts Options) (*Store, error) {
	var wl *writerLock
	if !opts.ReadOnly && !opts.DisableLocking {
		info, err := ms.file.Stat()
		if err != nil {
			ms.close()
			return nil, fmt.Errorf("%w: stat: %v", ErrIOError, err)
		}
		w, err := acquireWriterLock(path, info)
		if err != nil {
			ms.close()
			return nil, err
		}
		wl = w
	}

	j, err := journal.Open(path + ".journal")
	if err != nil {
		if wl != nil {
			wl.Close()
		}
		ms.close()
		return nil, fmt.Errorf("%w: %v", ErrJournalError, err)
	}

	hdr, err := ms.header()
	if err != nil {
		j.Close()
		if wl != nil {
			wl.Close()
		}
		ms.close()
		return nil, err
	}

	state := &dispatchState{mode: hdr.mode, algo: hdr.algorithmID}
	if hdr.mode != ModeStandard {
		payload := ms.data[hdr.mphfOffset : hdr.mphfOffset+hdr.mphfSize]
		hasher, err := mphf.Deserialize(payload)
		if err != nil {
			j.Close()
			if wl != nil {
				wl.Close()
			}
			ms.close()
			return nil, err
		}
		state.hasher = hasher
	}

	s := &Store{
		store:   ms,
		journal: j,
		wl:      wl,
		opts:    opts,
		path:    path,
	}
	s.state.Store(state)

	return s, nil
}

func (s *Store) logger() *zap.Logger {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return zap.NewNop()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value for key, or (nil, false) if it does not exist.
// Never blocks and never mutates state.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	st := s.state.Load()

	if st.mode != ModeStandard {
		if v, ok := s.getViaMPHF(st, key); ok {
			return v, true, nil
		}
		if st.mode == ModePerfect {
			return nil, false, nil
		}
		// hybrid: fall through to standard probing for keys inserted
		// since the MPHF was built.
	}

	return s.getStandard(key)
}

func (s *Store) getViaMPHF(st *dispatchState, key []byte) ([]byte, bool) {
	slot, ok := st.hasher.SlotFor(key)
	if !ok {
		return nil, false
	}

	hash := fnv1a32(key)
	gotHash, data, ok := s.store.read(slot)
	if !ok || gotHash != hash {
		return nil, false
	}
	return data, true
}

func (s *Store) getStandard(key []byte) ([]byte, bool, error) {
	hash := fnv1a32(key)
	total := s.store.slotCount()
	if total == 0 {
		return nil, false, nil
	}

	for _, idx := range probeSequence(hash%total, total) {
		if s.store.empty(idx) {
			return nil, false, nil
		}
		if s.store.hashAt(idx) != hash {
			continue
		}
		gotHash, data, ok := s.store.read(idx)
		if ok && gotHash == hash {
			return data, true, nil
		}
	}

	return nil, false, nil
}

// Set inserts or updates key with value.
func (s *Store) Set(key, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if len(value) > maxValueSize {
		return ErrValueTooLarge
	}

	st := s.state.Load()
	hash := fnv1a32(key)

	if st.mode != ModeStandard {
		if slot, ok := st.hasher.SlotFor(key); ok {
			if err := s.store.write(slot, hash, value); err != nil {
				return err
			}
			return s.finishMutation(key, true)
		}
		if st.mode == ModePerfect {
			// A new key after optimize transitions perfect -> hybrid
			// (the documented implementation choice for this case):
			// the MPHF keeps serving the keys it was built over, and
			// standard probing serves everything inserted since.
			s.transitionToHybrid(st)
		}
		// hybrid: new key, falls through to standard probing below.
	}

	if err := s.setStandard(hash, value); err != nil {
		return err
	}
	return s.finishMutation(key, true)
}

// transitionToHybrid flips the in-memory dispatch state and the
// on-disk header mode from perfect to hybrid, without touching the
// MPHF payload or any slot contents.
func (s *Store) transitionToHybrid(prev *dispatchState) {
	hdr, err := s.store.header()
	if err == nil {
		hdr.mode = ModeHybrid
		s.store.writeHeader(hdr)
	}

	s.state.Store(&dispatchState{mode: ModeHybrid, algo: prev.algo, hasher: prev.hasher})
}

func (s *Store) setStandard(hash uint32, value []byte) error {
	total := s.store.slotCount()
	if total == 0 {
		return ErrTableFull
	}

	for _, idx := range probeSequence(hash%total, total) {
		if s.store.empty(idx) {
			return s.store.write(idx, hash, value)
		}
		if s.store.hashAt(idx) == hash {
			return s.store.write(idx, hash, value)
		}
	}

	return ErrTableFull
}

// Remove deletes key if present.
func (s *Store) Remove(key []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	st := s.state.Load()
	hash := fnv1a32(key)
	found := false

	if st.mode != ModeStandard {
		if slot, ok := st.hasher.SlotFor(key); ok {
			gotHash, _, ok := s.store.read(slot)
			if ok && gotHash == hash {
				if err := s.store.clear(slot); err != nil {
					return err
				}
				found = true
			}
		}
	}

	if !found && st.mode != ModePerfect {
		removed, err := s.removeStandard(hash)
		if err != nil {
			return err
		}
		found = found || removed
	}

	if !found {
		return ErrKeyNotFound
	}

	return s.finishMutation(key, false)
}

func (s *Store) removeStandard(hash uint32) (bool, error) {
	total := s.store.slotCount()
	if total == 0 {
		return false, nil
	}

	for _, idx := range probeSequence(hash%total, total) {
		if s.store.empty(idx) {
			return false, nil
		}
		if s.store.hashAt(idx) == hash {
			if err := s.store.clear(idx); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	return false, nil
}

// finishMutation appends the journal record and bumps the generation
// counter; isSet selects an insert vs. remove record.
func (s *Store) finishMutation(key []byte, isSet bool) error {
	var err error
	if isSet {
		err = s.journal.AppendInsert(key)
	} else {
		err = s.journal.AppendRemove(key)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJournalError, err)
	}

	s.bumpGeneration()
	return nil
}

func (s *Store) bumpGeneration() {
	g := atomicLoadUint64(s.store.data[offGeneration : offGeneration+8])
	atomicStoreUint64(s.store.data[offGeneration:offGeneration+8], g+1)
}

// Stats reports point-in-time usage and mode information. used_slots is
// computed by a full scan, as the design mandates.
type Stats struct {
	TotalSlots        uint64
	UsedSlots         uint64
	LoadFactor        float64
	Generation        uint64
	Mode              Mode
	Algorithm         mphf.Algorithm
	PerfectHashMemory int
}

// String renders a Stats snapshot for logs and CLI output.
func (st Stats) String() string {
	return fmt.Sprintf("mode=%s algo=%s slots=%d/%d load=%.4f gen=%d perfect_mem=%d",
		st.Mode, st.Algorithm, st.UsedSlots, st.TotalSlots, st.LoadFactor, st.Generation, st.PerfectHashMemory)
}

// LogFields renders a Stats snapshot as structured zap fields, for callers
// that want to attach it to a log line instead of formatting it directly.
func (st Stats) LogFields() []zap.Field {
	return []zap.Field{
		zap.Stringer("mode", st.Mode),
		zap.Stringer("algorithm", st.Algorithm),
		zap.Uint64("total_slots", st.TotalSlots),
		zap.Uint64("used_slots", st.UsedSlots),
		zap.Float64("load_factor", st.LoadFactor),
		zap.Uint64("generation", st.Generation),
		zap.Int("perfect_hash_memory", st.PerfectHashMemory),
	}
}

func (s *Store) Stats() (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}

	total := s.store.slotCount()
	var used uint64
	for i := uint64(0); i < total; i++ {
		if !s.store.empty(i) {
			used++
		}
	}

	st := s.state.Load()
	var memBytes int
	if st.hasher != nil {
		memBytes = st.hasher.Statistics().MemoryBytes
	}

	gen := atomicLoadUint64(s.store.data[offGeneration : offGeneration+8])

	var load float64
	if total > 0 {
		load = float64(used) / float64(total)
	}

	return Stats{
		TotalSlots:        total,
		UsedSlots:         used,
		LoadFactor:        load,
		Generation:        gen,
		Mode:              st.mode,
		Algorithm:         st.algo,
		PerfectHashMemory: memBytes,
	}, nil
}

// Close releases all resources. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.journal.Close(); err != nil {
		firstErr = err
	}
	if s.wl != nil {
		if err := s.wl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.store.close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
