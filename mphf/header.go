package mphf

import (
	"encoding/binary"
	"fmt"
)

// commonHeaderSize is the size in bytes of the framing every serialized
// Hasher shares: magic(u32), format_version(u32), algorithm_id(u32).
const commonHeaderSize = 12

type commonHeader struct {
	algorithm Algorithm
}

// encodeHeader writes the common framing into buf[0:commonHeaderSize].
func encodeHeader(buf []byte, algo Algorithm) {
	binary.LittleEndian.PutUint32(buf[0:4], wireMagic)
	binary.LittleEndian.PutUint32(buf[4:8], mphfFormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(algo))
}

// decodeHeader validates and strips the common framing, returning the
// algorithm id and the remaining algorithm-specific body.
func decodeHeader(buf []byte) (commonHeader, []byte, error) {
	if len(buf) < commonHeaderSize {
		return commonHeader{}, nil, fmt.Errorf("%w: payload shorter than header", ErrInvalidFormat)
	}

	gotMagic := binary.LittleEndian.Uint32(buf[0:4])
	if gotMagic != wireMagic {
		return commonHeader{}, nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidFormat, gotMagic)
	}

	gotVersion := binary.LittleEndian.Uint32(buf[4:8])
	if gotVersion != mphfFormatVersion {
		return commonHeader{}, nil, fmt.Errorf("%w: unsupported format version %d", ErrInvalidFormat, gotVersion)
	}

	algo := Algorithm(binary.LittleEndian.Uint32(buf[8:12]))

	return commonHeader{algorithm: algo}, buf[commonHeaderSize:], nil
}

// putLE64 and getLE64 are the scalar counterparts of putUint64Slice,
// used by each algorithm's Serialize for fixed-layout fields like seeds
// and table sizes.
func putLE64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func getLE64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// putUint64Slice length-prefixes and little-endian encodes a uint64
// slice, appending to dst.
func putUint64Slice(dst []byte, vals []uint64) []byte {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(vals)))
	dst = append(dst, lenBuf[:]...)

	for _, v := range vals {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		dst = append(dst, b[:]...)
	}

	return dst
}

// takeUint64Slice reads a length-prefixed uint64 slice from the front of
// buf, returning the slice and the remaining bytes.
func takeUint64Slice(buf []byte) ([]uint64, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, fmt.Errorf("%w: truncated slice length", ErrInvalidFormat)
	}

	n := binary.LittleEndian.Uint64(buf[0:8])
	buf = buf[8:]

	need := n * 8
	if uint64(len(buf)) < need {
		return nil, nil, fmt.Errorf("%w: truncated slice body", ErrInvalidFormat)
	}

	vals := make([]uint64, n)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}

	return vals, buf[need:], nil
}

// putUint32Slice is putUint64Slice's 32-bit counterpart, used for
// compact per-bucket parameters (displacements, pilots, seeds).
func putUint32Slice(dst []byte, vals []uint32) []byte {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(vals)))
	dst = append(dst, lenBuf[:]...)

	for _, v := range vals {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		dst = append(dst, b[:]...)
	}

	return dst
}

func takeUint32Slice(buf []byte) ([]uint32, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, fmt.Errorf("%w: truncated slice length", ErrInvalidFormat)
	}

	n := binary.LittleEndian.Uint64(buf[0:8])
	buf = buf[8:]

	need := n * 4
	if uint64(len(buf)) < need {
		return nil, nil, fmt.Errorf("%w: truncated slice body", ErrInvalidFormat)
	}

	vals := make([]uint32, n)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}

	return vals, buf[need:], nil
}
