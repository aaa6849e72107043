package maph

import "errors"

// Error kinds returned by Store operations. Each is distinct and never
// conflated with another; callers should compare with errors.Is.
var (
	// ErrIOError wraps an open/map/truncate/msync failure, including
	// missing files and permission errors.
	ErrIOError = errors.New("maph: io error")

	// ErrInvalidFormat is returned when a file's header has a bad magic,
	// an incompatible format version, an unrecognized MPHF algorithm id,
	// or a truncated MPHF payload.
	ErrInvalidFormat = errors.New("maph: invalid format")

	// ErrReadOnly is returned by mutating operations on a handle opened
	// read-only.
	ErrReadOnly = errors.New("maph: store is read-only")

	// ErrValueTooLarge is returned when a value exceeds maxValueSize bytes.
	ErrValueTooLarge = errors.New("maph: value too large")

	// ErrTableFull is returned when standard-mode probing exhausts its
	// K-probe window without finding a usable slot.
	ErrTableFull = errors.New("maph: table full")

	// ErrKeyNotFound is returned by Remove when the key does not exist.
	// Get reports a missing key as (nil, false, nil) rather than this
	// error; see Store.Get.
	ErrKeyNotFound = errors.New("maph: key not found")

	// ErrOptimizationFailed is returned by Optimize when the active key
	// set is empty or the MPHF build's round-trip verification fails.
	ErrOptimizationFailed = errors.New("maph: optimization failed")

	// ErrJournalError is returned when the journal is unreadable or
	// unwritable.
	ErrJournalError = errors.New("maph: journal error")

	// ErrBusy is returned when a writer handle is requested on a file
	// already locked by another writer, in-process or cross-process.
	ErrBusy = errors.New("maph: another writer is active")

	// ErrClosed is returned by any operation on a closed Store.
	ErrClosed = errors.New("maph: store is closed")
)
