package maph

import (
	"fmt"

	"github.com/queelius/maph/mphf"
	"go.uber.org/zap"
)

// Optimize builds an MPHF over the currently active key set (per the
// journal) and, on success, switches the store to perfect mode. A
// store already in perfect or hybrid mode is rebuilt from scratch: the
// new MPHF covers the current active set, including any keys inserted
// via standard probing since the last optimize.
//
// The MPHF's dense index for a key becomes that key's new physical
// slot, giving the documented single-access perfect-mode lookup:
// Optimize relocates each active key's value from wherever standard
// probing had placed it to hasher.SlotFor(key). get(k) keeps returning
// the same value (P8); the slot it lives at may change.
//
// Optimize is long and blocking; callers should not expect it to be
// fast.
func (s *Store) Optimize(algo mphf.Algorithm, params mphf.Params) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	log := s.logger()

	keys := s.journal.ActiveKeys()
	if len(keys) == 0 {
		log.Info("optimize: no active keys, no-op")
		return nil
	}

	values := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: active key missing from slot store", ErrOptimizationFailed)
		}
		values[i] = v
	}

	builder, err := mphf.NewBuilder(algo, params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
	}

	if err := builder.AddAll(keys); err != nil {
		return fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
	}

	hasher, err := builder.Build()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
	}

	if err := hasher.Verify(keys); err != nil {
		return fmt.Errorf("%w: round-trip verify: %v", ErrOptimizationFailed, err)
	}

	payload := hasher.Serialize()

	offset, err := s.store.appendMPHF(payload)
	if err != nil {
		return err
	}

	if err := s.relocateToMPHF(hasher, keys, values); err != nil {
		return err
	}

	hdr, err := s.store.header()
	if err != nil {
		return err
	}
	hdr.mode = ModePerfect
	hdr.algorithmID = algo
	hdr.mphfOffset = offset
	hdr.mphfSize = uint64(len(payload))
	s.store.writeHeader(hdr)

	s.state.Store(&dispatchState{mode: ModePerfect, algo: algo, hasher: hasher})
	s.bumpGeneration()

	log.Info("optimize: switched to perfect mode",
		zap.String("algorithm", algo.String()),
		zap.Int("key_count", len(keys)),
	)

	return nil
}

// relocateToMPHF clears every currently occupied slot and rewrites
// each key's value at its new MPHF-assigned index. Every occupied slot
// belongs to some active key by construction (set/remove keep the
// journal and the slot array in lockstep), so clearing all occupied
// slots before rewriting never discards live data outside keys.
func (s *Store) relocateToMPHF(hasher mphf.Hasher, keys [][]byte, values [][]byte) error {
	total := s.store.slotCount()
	for i := uint64(0); i < total; i++ {
		if !s.store.empty(i) {
			if err := s.store.clear(i); err != nil {
				return err
			}
		}
	}

	for i, k := range keys {
		slot, ok := hasher.SlotFor(k)
		if !ok {
			return fmt.Errorf("%w: built hasher rejects its own input key", ErrOptimizationFailed)
		}
		if err := s.store.write(slot, fnv1a32(k), values[i]); err != nil {
			return err
		}
	}

	return nil
}
