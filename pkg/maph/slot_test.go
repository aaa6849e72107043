package maph

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotEmptyAndWriteReadClear(t *testing.T) {
	buf := make([]byte, slotSize)
	require.True(t, slotEmpty(buf))

	writeSlot(buf, 7, []byte("payload"))
	require.False(t, slotEmpty(buf))

	hash, data, ok := readSlot(buf)
	require.True(t, ok)
	require.Equal(t, uint32(7), hash)
	require.Equal(t, []byte("payload"), data)

	clearSlot(buf)
	require.True(t, slotEmpty(buf))
	_, _, ok = readSlot(buf)
	require.False(t, ok)
}

// TestP9TornReadFreedom verifies P9: a concurrent reader of a slot
// under continuous writes never observes a (hash, value) combination
// that the writer never published as a single atomic commit.
func TestP9TornReadFreedom(t *testing.T) {
	buf := make([]byte, slotSize)

	// Each distinct value written carries its own hash equal to its
	// index, so a torn read (old hash + new data, or vice versa) is
	// detectable as hash != decoded value.
	const iterations = 2000

	writeSlot(buf, 1, encodeUint32(1))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := uint32(2); i < iterations; i++ {
			writeSlot(buf, i, encodeUint32(i))
		}
	}()

	readErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			hash, data, ok := readSlot(buf)
			if !ok {
				continue
			}
			if len(data) != 4 {
				readErr <- fmt.Errorf("unexpected data length %d", len(data))
				return
			}
			if binary.LittleEndian.Uint32(data) != hash {
				readErr <- fmt.Errorf("torn read: hash=%d data=%d", hash, binary.LittleEndian.Uint32(data))
				return
			}
		}
		readErr <- nil
	}()

	wg.Wait()
	require.NoError(t, <-readErr)
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
