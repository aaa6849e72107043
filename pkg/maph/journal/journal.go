// Package journal implements the append-only key-event log used to
// reconstruct the active key set for an MPHF build.
//
// Each line is either an insert record `I:<len>:<key>` or a remove
// record `R:<len>:<key>`, where len is the raw byte count of key (keys
// may contain any byte, including '\n'; the parser trusts len rather
// than scanning for a delimiter). Malformed lines are skipped rather
// than treated as fatal, mirroring the journal's tolerance for
// truncated writes after a crash.
package journal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	natatomic "github.com/natefinch/atomic"
)

const (
	opInsert = 'I'
	opRemove = 'R'
)

// ErrJournalError wraps any I/O failure opening, appending to, or
// compacting the journal file.
var ErrJournalError = fmt.Errorf("journal: io error")

// Journal is an append-only log at path, with an in-memory mirror of
// the active key set so ActiveKeys never re-reads the file after Open's
// initial replay.
type Journal struct {
	path string

	mu     sync.Mutex
	file   *os.File
	active map[string]struct{}
}

// Open opens (creating if absent) the journal at path and replays it
// to populate the in-memory active-key mirror.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrJournalError, err)
	}

	active, err := replay(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek: %v", ErrJournalError, err)
	}

	return &Journal{path: path, file: f, active: active}, nil
}

// replay reads every well-formed record from f from the start and
// returns the resulting active key set. Malformed lines are skipped.
func replay(f *os.File) (map[string]struct{}, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek: %v", ErrJournalError, err)
	}

	active := map[string]struct{}{}
	r := bufio.NewReader(f)

	for {
		op, key, ok := readRecord(r)
		if !ok {
			break
		}
		switch op {
		case opInsert:
			active[string(key)] = struct{}{}
		case opRemove:
			delete(active, string(key))
		}
	}

	return active, nil
}

// readRecord parses one `<op>:<len>:<keybytes>\n` record. It returns
// ok=false at true EOF. A line that is truncated or malformed mid-parse
// is skipped: readRecord resynchronizes at the next '\n' and keeps
// reading, rather than propagating an error, since the reader must
// tolerate a journal truncated by a crash mid-append.
func readRecord(r *bufio.Reader) (op byte, key []byte, ok bool) {
	for {
		opByte, err := r.ReadByte()
		if err != nil {
			return 0, nil, false
		}

		if opByte != opInsert && opByte != opRemove {
			skipLine(r)
			continue
		}

		if b, err := r.ReadByte(); err != nil || b != ':' {
			skipLine(r)
			continue
		}

		lenStr, err := r.ReadString(':')
		if err != nil {
			return 0, nil, false
		}
		lenStr = lenStr[:len(lenStr)-1]

		n, err := strconv.Atoi(lenStr)
		if err != nil || n < 0 {
			skipLine(r)
			continue
		}

		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, false
		}

		nl, err := r.ReadByte()
		if err != nil {
			return 0, nil, false
		}
		if nl != '\n' {
			skipLine(r)
			continue
		}

		return opByte, buf, true
	}
}

func skipLine(r *bufio.Reader) {
	_, _ = r.ReadString('\n')
}

func encodeRecord(op byte, key []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(op)
	buf.WriteByte(':')
	buf.WriteString(strconv.Itoa(len(key)))
	buf.WriteByte(':')
	buf.Write(key)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// AppendInsert records key as inserted and adds it to the active set.
func (j *Journal) AppendInsert(key []byte) error {
	return j.append(opInsert, key)
}

// AppendRemove records key as removed and drops it from the active set.
func (j *Journal) AppendRemove(key []byte) error {
	return j.append(opRemove, key)
}

func (j *Journal) append(op byte, key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(encodeRecord(op, key)); err != nil {
		return fmt.Errorf("%w: append: %v", ErrJournalError, err)
	}

	switch op {
	case opInsert:
		j.active[string(key)] = struct{}{}
	case opRemove:
		delete(j.active, string(key))
	}

	return nil
}

// ActiveKeys returns the current active key set. The returned slice's
// order is not part of the contract.
func (j *Journal) ActiveKeys() [][]byte {
	j.mu.Lock()
	defer j.mu.Unlock()

	keys := make([][]byte, 0, len(j.active))
	for k := range j.active {
		keys = append(keys, []byte(k))
	}
	return keys
}

// Compact rewrites the journal to contain only insert records for the
// currently active keys, via write-new-then-rename using
// natefinch/atomic so a crash mid-compaction never leaves a torn file.
func (j *Journal) Compact() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var buf bytes.Buffer
	for k := range j.active {
		buf.Write(encodeRecord(opInsert, []byte(k)))
	}

	if err := natatomic.WriteFile(j.path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: compact: %v", ErrJournalError, err)
	}

	if err := j.file.Close(); err != nil {
		return fmt.Errorf("%w: close old handle: %v", ErrJournalError, err)
	}

	f, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("%w: reopen after compact: %v", ErrJournalError, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return fmt.Errorf("%w: seek after compact: %v", ErrJournalError, err)
	}

	j.file = f
	return nil
}

// Close closes the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrJournalError, err)
	}
	return nil
}
