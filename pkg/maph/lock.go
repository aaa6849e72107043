package maph

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/queelius/maph/internal/fs"
)

// fileIdentity distinguishes files by (dev, inode) rather than path,
// so that two different paths naming the same file (via symlink or
// hardlink) are correctly recognized as one writer target.
type fileIdentity struct {
	dev uint64
	ino uint64
}

func identityOf(info os.FileInfo) (fileIdentity, error) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok || sys == nil {
		return fileIdentity{}, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", info.Sys())
	}
	return fileIdentity{dev: uint64(sys.Dev), ino: sys.Ino}, nil
}

var (
	writerRegistryMu sync.Mutex
	writerRegistry   = map[fileIdentity]struct{}{}
)

// claimWriter registers identity as having an active in-process writer,
// returning ErrBusy if one is already registered. This is the
// in-process level of writer exclusion, checked before the
// cross-process flock in acquireWriterLock.
func claimWriter(id fileIdentity) error {
	writerRegistryMu.Lock()
	defer writerRegistryMu.Unlock()

	if _, exists := writerRegistry[id]; exists {
		return ErrBusy
	}
	writerRegistry[id] = struct{}{}
	return nil
}

func releaseWriter(id fileIdentity) {
	writerRegistryMu.Lock()
	defer writerRegistryMu.Unlock()
	delete(writerRegistry, id)
}

// writerLock bundles the in-process registry claim with the
// cross-process flock, released together by Close. The lock file lives
// alongside the store file as path+".lock".
type writerLock struct {
	id     fileIdentity
	lock   *fs.Lock
	closed bool
}

func acquireWriterLock(path string, info os.FileInfo) (*writerLock, error) {
	id, err := identityOf(info)
	if err != nil {
		return nil, fmt.Errorf("%w: file identity: %v", ErrIOError, err)
	}

	if err := claimWriter(id); err != nil {
		return nil, err
	}

	locker := fs.NewLocker(fs.NewReal())
	lk, err := locker.TryLock(path + ".lock")
	if err != nil {
		releaseWriter(id)
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("%w: lock: %v", ErrIOError, err)
	}

	return &writerLock{id: id, lock: lk}, nil
}

func (w *writerLock) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	releaseWriter(w.id)
	return w.lock.Close()
}
