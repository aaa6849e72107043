package maph

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// mmapStore owns the memory-mapped file backing a fixed-size slot
// array plus header. It has no notion of hashing, probing or modes;
// it only knows how to read/write/clear slots by index and how to
// grow the file to append an MPHF payload.
type mmapStore struct {
	file     *os.File
	data     []byte
	readOnly bool
	path     string
}

// createStore creates a new store file at path with totalSlots slots
// and an empty header, via temp-file-then-rename so a crash mid-create
// never leaves a partially written file at path.
func createStore(path string, totalSlots uint64) (*mmapStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: mkdir: %v", ErrIOError, err)
		}
	}

	randSuffix := make([]byte, 8)
	_, _ = rand.Read(randSuffix)
	tmpPath := fmt.Sprintf("%s.tmp.%x", path, randSuffix)

	size := fileSizeFor(totalSlots)

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrIOError, err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: truncate: %v", ErrIOError, err)
	}

	hdrBuf := make([]byte, headerSize)
	encodeHeader(hdrBuf, newHeader(totalSlots))
	if _, err := f.WriteAt(hdrBuf, 0); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: write header: %v", ErrIOError, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: fsync: %v", ErrIOError, err)
	}

	f.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: rename: %v", ErrIOError, err)
	}

	return openStore(path, false)
}

// openStore opens an existing store file, validating its header.
func openStore(path string, readOnly bool) (*mmapStore, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrIOError, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat: %v", ErrIOError, err)
	}

	if info.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("%w: file shorter than header", ErrInvalidFormat)
	}

	hdrBuf := make([]byte, headerSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read header: %v", ErrIOError, err)
	}

	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	minSize := fileSizeFor(hdr.totalSlots)
	if hdr.mphfSize > 0 {
		need := int64(hdr.mphfOffset) + int64(hdr.mphfSize)
		if need > minSize {
			minSize = need
		}
	}
	if info.Size() < minSize {
		f.Close()
		return nil, fmt.Errorf("%w: file truncated relative to header", ErrInvalidFormat)
	}

	data, err := mmapFile(f, info.Size(), readOnly)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mmapStore{file: f, data: data, readOnly: readOnly, path: path}, nil
}

func (s *mmapStore) header() (header, error) {
	return decodeHeader(s.data[:headerSize])
}

func (s *mmapStore) writeHeader(h header) {
	encodeHeader(s.data[:headerSize], h)
}

func (s *mmapStore) slotCount() uint64 {
	h, err := s.header()
	if err != nil {
		return 0
	}
	return h.totalSlots
}

func (s *mmapStore) slotBytes(i uint64) []byte {
	off := headerSize + int(i)*slotSize
	return s.data[off : off+slotSize]
}

// read returns (hash, value, true) for a non-empty slot i, or
// (0, nil, false) for an empty slot or an unresolved torn read.
func (s *mmapStore) read(i uint64) (uint32, []byte, bool) {
	return readSlot(s.slotBytes(i))
}

// write stores hash/value at slot i. Returns ErrValueTooLarge if value
// exceeds maxValueSize; ErrOutOfBounds-equivalent bounds checking is
// the caller's responsibility via slotCount since i is always derived
// from a hash or probe sequence already bounded to slotCount.
func (s *mmapStore) write(i uint64, hash uint32, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(value) > maxValueSize {
		return ErrValueTooLarge
	}
	writeSlot(s.slotBytes(i), hash, value)
	return nil
}

func (s *mmapStore) clear(i uint64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	clearSlot(s.slotBytes(i))
	return nil
}

func (s *mmapStore) hashAt(i uint64) uint32 {
	return slotHash(s.slotBytes(i))
}

func (s *mmapStore) empty(i uint64) bool {
	return slotEmpty(s.slotBytes(i))
}

// appendMPHF grows the backing file to hold payload past the current
// slot region and remaps it, returning the byte offset the payload was
// written at. Only valid in perfect/hybrid transitions driven by the
// Optimizer, which holds the single-writer guarantee.
func (s *mmapStore) appendMPHF(payload []byte) (offset uint64, err error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}

	h, err := s.header()
	if err != nil {
		return 0, err
	}

	base := fileSizeFor(h.totalSlots)
	newSize := base + int64(len(payload))

	if err := munmapFile(s.data); err != nil {
		return 0, err
	}

	if err := s.file.Truncate(newSize); err != nil {
		return 0, fmt.Errorf("%w: truncate: %v", ErrIOError, err)
	}

	if _, err := s.file.WriteAt(payload, base); err != nil {
		return 0, fmt.Errorf("%w: write mphf payload: %v", ErrIOError, err)
	}

	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("%w: fsync: %v", ErrIOError, err)
	}

	data, err := mmapFile(s.file, newSize, s.readOnly)
	if err != nil {
		return 0, err
	}
	s.data = data

	return uint64(base), nil
}

func (s *mmapStore) flush() error {
	if s.readOnly {
		return nil
	}
	return msyncRange(s.data, 0, int64(len(s.data)))
}

func (s *mmapStore) close() error {
	var firstErr error
	if err := munmapFile(s.data); err != nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: close: %v", ErrIOError, err)
	}
	return firstErr
}
