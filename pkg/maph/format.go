package maph

import (
	"encoding/binary"
	"fmt"

	"github.com/queelius/maph/mphf"
)

// Mode identifies which lookup strategy the dispatcher uses.
type Mode uint32

const (
	ModeStandard Mode = 0
	ModePerfect  Mode = 1
	ModeHybrid   Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModePerfect:
		return "perfect"
	case ModeHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// header mirrors the 512-byte file header at offset 0. Field order and
// widths are part of the on-disk format and must not change.
type header struct {
	magic        uint32
	formatVer    uint32
	totalSlots   uint64
	generation   uint64
	mode         Mode
	algorithmID  mphf.Algorithm
	mphfOffset   uint64
	mphfSize     uint64
}

const (
	offMagic       = 0
	offFormatVer   = 4
	offTotalSlots  = 8
	offGeneration  = 16
	offMode        = 24
	offAlgorithmID = 28
	offMphfOffset  = 32
	offMphfSize    = 40
	// remaining bytes up to headerSize are reserved, zero-filled.
)

func newHeader(totalSlots uint64) header {
	return header{
		magic:      magic,
		formatVer:  formatVersion,
		totalSlots: totalSlots,
		generation: 0,
		mode:       ModeStandard,
		algorithmID: mphf.AlgorithmNone,
	}
}

func encodeHeader(buf []byte, h header) {
	if len(buf) < headerSize {
		panic("maph: header buffer too small")
	}

	for i := range buf[:headerSize] {
		buf[i] = 0
	}

	binary.LittleEndian.PutUint32(buf[offMagic:], h.magic)
	binary.LittleEndian.PutUint32(buf[offFormatVer:], h.formatVer)
	binary.LittleEndian.PutUint64(buf[offTotalSlots:], h.totalSlots)
	binary.LittleEndian.PutUint64(buf[offGeneration:], h.generation)
	binary.LittleEndian.PutUint32(buf[offMode:], uint32(h.mode))
	binary.LittleEndian.PutUint32(buf[offAlgorithmID:], uint32(h.algorithmID))
	binary.LittleEndian.PutUint64(buf[offMphfOffset:], h.mphfOffset)
	binary.LittleEndian.PutUint64(buf[offMphfSize:], h.mphfSize)
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("%w: file shorter than header", ErrInvalidFormat)
	}

	gotMagic := binary.LittleEndian.Uint32(buf[offMagic:])
	if gotMagic != magic {
		return header{}, fmt.Errorf("%w: bad magic %#x", ErrInvalidFormat, gotMagic)
	}

	gotVersion := binary.LittleEndian.Uint32(buf[offFormatVer:])
	if gotVersion != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported format version %d", ErrInvalidFormat, gotVersion)
	}

	h := header{
		magic:       gotMagic,
		formatVer:   gotVersion,
		totalSlots:  binary.LittleEndian.Uint64(buf[offTotalSlots:]),
		generation:  binary.LittleEndian.Uint64(buf[offGeneration:]),
		mode:        Mode(binary.LittleEndian.Uint32(buf[offMode:])),
		algorithmID: mphf.Algorithm(binary.LittleEndian.Uint32(buf[offAlgorithmID:])),
		mphfOffset:  binary.LittleEndian.Uint64(buf[offMphfOffset:]),
		mphfSize:    binary.LittleEndian.Uint64(buf[offMphfSize:]),
	}

	if h.mode != ModeStandard && h.mode != ModePerfect && h.mode != ModeHybrid {
		return header{}, fmt.Errorf("%w: unrecognized mode %d", ErrInvalidFormat, h.mode)
	}

	return h, nil
}

// fileSizeFor returns the expected total file size for a store with
// totalSlots slots and no MPHF payload yet appended: header + N*slot.
func fileSizeFor(totalSlots uint64) int64 {
	return int64(headerSize) + int64(totalSlots)*int64(slotSize)
}
