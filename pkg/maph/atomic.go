package maph

import (
	"sync/atomic"
	"unsafe"
)

// Small wrappers around sync/atomic over an unsafe.Pointer into the
// mmap'd byte slice, used by the seqlock protocol in slot.go. The mmap
// region is page-aligned and every field accessed atomically here is
// naturally aligned to its own size (slots are 512 bytes, the header is
// 512 bytes), which is what sync/atomic requires on all supported
// architectures.

func atomicLoadUint64(b []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[0])))
}

func atomicStoreUint64(b []byte, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b[0])), v)
}

func atomicLoadUint32(b []byte) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[0])))
}

func atomicStoreUint32(b []byte, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[0])), v)
}
