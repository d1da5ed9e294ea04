// Package task owns the fixed-size task table: task storage, generation
// tagged handles, and the waker protocol that lets a suspended task ask to
// be polled again.
package task

import (
	"sync"
	"sync/atomic"
)

// Poll is the result of advancing a task once.
type Poll int

const (
	// Pending means the task has not finished and has arranged to be
	// woken later.
	Pending Poll = iota
	// Completed means the task finished and its slot may be reclaimed.
	Completed
)

// Task is a single unit of cooperatively scheduled work. Advance is called
// at most once per scheduling pass; it must not block.
type Task interface {
	Advance(cx *Cx) Poll
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(cx *Cx) Poll

// Advance implements Task.
func (f TaskFunc) Advance(cx *Cx) Poll { return f(cx) }

// Waker lets a task (or anything it registered with, such as the reactor)
// request to be polled again.
type Waker interface {
	Wake()
}

// Cx is the context passed to a task on each poll. It carries a Waker bound
// to the task's own handle.
type Cx struct {
	Handle uint64
	Waker  Waker
}

// MaxSlots is the default capacity of the task table.
const MaxSlots = 1024

type slot struct {
	mu         sync.Mutex
	task       Task
	generation atomic.Uint64
}

// Table is a fixed-capacity array of task slots addressed by generation
// tagged handles. A handle encodes (slot index, generation) as
// (index<<32 | generation&0xFFFFFFFF); a handle is valid only while its
// generation matches (or trails by exactly one, to tolerate a benign race
// between completion and a concurrent wake) the slot's current generation.
type Table struct {
	slots []slot
	free  *indexStack

	// schedule is invoked whenever a task should be placed back on the run
	// queue. It is wired in by the runtime bootstrap (worker.New in
	// internal/runtime/worker hands it wake.Scheduler.WakeHandle) to avoid
	// an import cycle between task and the scheduling/eventing packages
	// that sit above it.
	schedule atomic.Pointer[func(uint64)]
}

// NewTable creates a task table with the given slot capacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = MaxSlots
	}
	return &Table{
		slots: make([]slot, capacity),
		free:  newIndexStack(),
	}
}

// SetScheduler wires the function used to place a handle back on the run
// queue. It must be called once during runtime bootstrap before any task is
// spawned or woken.
func (t *Table) SetScheduler(fn func(uint64)) {
	t.schedule.Store(&fn)
}

func (t *Table) scheduleHandle(handle uint64) {
	if fn := t.schedule.Load(); fn != nil {
		(*fn)(handle)
	}
}

func encodeHandle(index int, generation uint64) uint64 {
	return uint64(uint32(index))<<32 | (generation & 0xFFFFFFFF)
}

func decodeHandle(handle uint64) (index int, generation uint64) {
	return int(handle >> 32), handle & 0xFFFFFFFF
}

// Spawn registers a task, returns its handle, and schedules it to run once.
func (t *Table) Spawn(task Task) uint64 {
	idx, ok := t.free.pop()
	if !ok {
		idx = t.findEmptySlot()
	}
	s := &t.slots[idx]

	s.mu.Lock()
	gen := s.generation.Add(1)
	s.task = task
	s.mu.Unlock()

	handle := encodeHandle(idx, gen)
	t.scheduleHandle(handle)
	return handle
}

func (t *Table) findEmptySlot() int {
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		empty := s.task == nil
		s.mu.Unlock()
		if empty {
			return i
		}
	}
	panic("task: no free slots available")
}

// CreateWaker builds a Waker bound to handle; calling Wake reschedules the
// handle regardless of how many times it is called.
func (t *Table) CreateWaker(handle uint64) Waker {
	return &tableWaker{table: t, handle: handle}
}

type tableWaker struct {
	table  *Table
	handle uint64
}

func (w *tableWaker) Wake() { w.table.scheduleHandle(w.handle) }

// PollTaskSafe advances the task named by handle exactly once. It returns
// Completed without touching the slot if the handle is stale (its
// generation no longer matches, allowing for the one-generation race
// window between a wake and a completion).
func (t *Table) PollTaskSafe(handle uint64, cx *Cx) Poll {
	idx, gen := decodeHandle(handle)
	if idx < 0 || idx >= len(t.slots) {
		return Completed
	}
	s := &t.slots[idx]

	cur := s.generation.Load()
	if cur != gen && cur != gen+1 {
		return Completed
	}

	s.mu.Lock()
	tk := s.task
	s.task = nil
	s.mu.Unlock()

	if tk == nil {
		return Completed
	}

	result := tk.Advance(cx)
	if result == Completed {
		t.free.push(idx)
		return Completed
	}

	s.mu.Lock()
	s.task = tk
	s.mu.Unlock()
	return Pending
}

// Capacity reports the table's slot capacity, for diagnostics.
func (t *Table) Capacity() int { return len(t.slots) }
