//go:build unix

package maph

import (
	"fmt"
	"os"
	"syscall"
)

// mmapFile maps the whole of f (which must already be truncated to the
// desired size) shared and read-write, or read-only when readOnly is
// set.
func mmapFile(f *os.File, size int64, readOnly bool) ([]byte, error) {
	prot := syscall.PROT_READ
	if !readOnly {
		prot |= syscall.PROT_WRITE
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), prot, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrIOError, err)
	}

	return data, nil
}

func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	if err := syscall.Munmap(data); err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrIOError, err)
	}
	return nil
}

// msyncRange flushes the dirty byte range [offset, offset+length) to
// the backing file, rounded down to the enclosing page since msync
// operates on whole pages.
func msyncRange(data []byte, offset, length int64) error {
	if length <= 0 {
		return nil
	}

	pageSize := int64(syscall.Getpagesize())
	alignedStart := (offset / pageSize) * pageSize
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}

	if alignedStart >= end {
		return nil
	}

	if err := syscall.Msync(data[alignedStart:end], syscall.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync: %v", ErrIOError, err)
	}

	return nil
}
