package mphf

// keyAccumulator implements the Add/AddAll/WithSeed surface shared by
// every algorithm's Builder, leaving Build() to the concrete type.
type keyAccumulator struct {
	keys   [][]byte
	seen   map[string]struct{}
	seed   uint64
	seeded bool
}

func (k *keyAccumulator) add(key []byte) error {
	if k.seen == nil {
		k.seen = make(map[string]struct{})
	}

	s := string(key)
	if _, ok := k.seen[s]; ok {
		return ErrDuplicateKey
	}

	k.seen[s] = struct{}{}
	k.keys = append(k.keys, append([]byte(nil), key...))

	return nil
}

func (k *keyAccumulator) addAll(keys [][]byte) error {
	for _, key := range keys {
		if err := k.add(key); err != nil {
			return err
		}
	}

	return nil
}

func (k *keyAccumulator) withSeed(seed uint64) {
	k.seed = seed
	k.seeded = true
}

// resolvedSeed returns the configured seed, or a fixed default when none
// was set via WithSeed. A fixed rather than random default keeps builds
// reproducible out of the box (spec P6 determinism); callers wanting
// build-to-build variation call WithSeed explicitly.
func (k *keyAccumulator) resolvedSeed() uint64 {
	if k.seeded {
		return k.seed
	}
	return 0x51c30bb4d2e1f7a9
}
