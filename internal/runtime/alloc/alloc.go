// Package alloc implements a bump allocator that backs the runtime's
// per-connection I/O buffers — the scratch space internal/httpserver and
// internal/wsproto read socket data into on every poll — from one
// mmap-backed region, instead of letting each read grow the Go heap. It
// never reclaims memory.
package alloc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// DefaultArenaSize is the default size of the mmap-backed arena (16MiB).
const DefaultArenaSize = 16 * 1024 * 1024

// Arena is a single contiguous region of anonymous memory served out with a
// monotonically advancing bump pointer. Free is a documented no-op: every
// allocation stays reserved for the life of the arena, and Alloc returns
// nil once the region is used up.
type Arena struct {
	once sync.Once
	err  error

	size int

	base uintptr
	cur  atomic.Uintptr
	end  uintptr

	region []byte // keeps the mmap'd slice alive and GC-visible
}

// NewArena creates an arena of the given size. The backing mmap region is
// not created until the first Alloc call.
func NewArena(size int) *Arena {
	if size <= 0 {
		size = DefaultArenaSize
	}
	return &Arena{size: size}
}

func (a *Arena) ensureMapped() error {
	a.once.Do(func() {
		region, err := unix.Mmap(-1, 0, a.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			a.err = fmt.Errorf("alloc: mmap arena of %d bytes: %w", a.size, err)
			return
		}
		a.region = region
		a.base = uintptr(0)
		if len(region) > 0 {
			// Offsets are tracked relative to the start of the slice rather
			// than the process address, since Go may relocate the backing
			// array's header (not its mmap'd bytes) across calls.
			a.base = 0
		}
		a.cur.Store(0)
		a.end = uintptr(a.size)
	})
	return a.err
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}
	return (v + align - 1) &^ (align - 1)
}

// Alloc reserves size bytes aligned to align (minimum 1) and returns a slice
// over the arena's backing memory. It returns nil if the arena is exhausted
// or the backing mmap could not be created. A zero-sized request succeeds
// without advancing the bump pointer and returns a zero-length, non-nil
// slice.
func (a *Arena) Alloc(size int, align int) []byte {
	if err := a.ensureMapped(); err != nil {
		return nil
	}
	if align <= 0 {
		align = 1
	}
	if size == 0 {
		return a.region[0:0:0]
	}

	for {
		cur := a.cur.Load()
		aligned := alignUp(cur, uintptr(align))
		next := aligned + uintptr(size)
		if next > a.end {
			return nil
		}
		if a.cur.CompareAndSwap(cur, next) {
			return a.region[aligned:next:next]
		}
	}
}

// MustAlloc is Alloc, except it panics instead of returning nil on
// exhaustion or a failed mmap. Callers that have no reasonable fallback for
// allocation failure use this.
func (a *Arena) MustAlloc(size int, align int) []byte {
	b := a.Alloc(size, align)
	if b == nil {
		panic(fmt.Sprintf("alloc: arena exhausted allocating %d bytes", size))
	}
	return b
}

// Free is a no-op. The arena never reclaims memory; callers that need
// reuse should route through a bounded freelist (see internal/runtime/queue)
// instead of relying on deallocation.
func (a *Arena) Free([]byte) {}

// Used returns the number of bytes currently allocated from the arena.
func (a *Arena) Used() uintptr {
	return a.cur.Load()
}

// Cap returns the total capacity of the arena in bytes.
func (a *Arena) Cap() uintptr {
	return uintptr(a.size)
}

var global = NewArena(DefaultArenaSize)

// InitGlobal replaces the process-global arena with one of the given size.
// It must be called, if at all, before the first allocation from Global or
// Bytes — typically once at startup from the parsed arena-size flag —
// since the previous arena's mmap region (if already created) is simply
// abandoned, not unmapped.
func InitGlobal(size int) {
	global = NewArena(size)
}

// Global returns the process-wide default arena used by the runtime's
// internal packages when no explicit arena is wired in.
func Global() *Arena { return global }

// Bytes allocates size bytes from the process-global arena, panicking on
// exhaustion. This is what internal/httpserver and internal/wsproto use for
// their per-read receive buffers, so that scratch space comes from the
// same mmap-backed region as the rest of the runtime's core allocations.
func Bytes(size int) []byte {
	return global.MustAlloc(size, 1)
}
