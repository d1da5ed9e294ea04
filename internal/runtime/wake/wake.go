// Package wake provides the eventfd-backed signal used to unblock the
// reactor's ppoll wait when new work is scheduled while it sleeps, and the
// WakeHandle entry point that pushes a handle onto the run queue.
package wake

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/asyncd/asyncd/internal/runtime/queue"
)

// Signal wraps a single process-global eventfd used to wake a blocked
// ppoll call. Writes while the counter is already nonzero are coalesced:
// only the transition from zero to nonzero touches the kernel.
type Signal struct {
	mu      sync.Mutex
	fd      int
	created bool

	pending atomic.Int64
}

// NewSignal creates an unarmed signal; the eventfd itself is created lazily
// on first Ensure call.
func NewSignal() *Signal {
	return &Signal{fd: -1}
}

// Ensure creates the underlying eventfd if it does not exist yet. It is
// safe to call repeatedly and from multiple goroutines.
func (s *Signal) Ensure() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return s.fd, nil
	}
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		return -1, err
	}
	s.fd = fd
	s.created = true
	return s.fd, nil
}

// FD returns the current eventfd, or -1 if it has not been created.
func (s *Signal) FD() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// Raise signals the eventfd if it transitions from zero pending wakes to
// one; subsequent raises before the signal is drained are coalesced.
func (s *Signal) Raise() {
	if s.pending.Add(1) != 1 {
		return
	}
	fd, err := s.Ensure()
	if err != nil {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(fd, buf[:])
}

// Drain reads and discards the eventfd's counter and resets the pending
// count, acknowledging all wakes raised since the last drain.
func (s *Signal) Drain() {
	fd := s.FD()
	if fd < 0 {
		return
	}
	var buf [8]byte
	unix.Read(fd, buf[:])
	s.pending.Store(0)
}

// Close releases the eventfd. Safe to call even if it was never created.
func (s *Signal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return nil
	}
	err := unix.Close(s.fd)
	s.created = false
	s.fd = -1
	return err
}

// Scheduler couples a run queue with the eventfd signal that wakes anyone
// blocked waiting for new work.
type Scheduler struct {
	Queue  *queue.RunQueue
	Signal *Signal
}

// NewScheduler creates a scheduler over a fresh run queue and signal.
func NewScheduler(freelistCap int) *Scheduler {
	return &Scheduler{
		Queue:  queue.New(freelistCap),
		Signal: NewSignal(),
	}
}

// WakeHandle pushes handle onto the run queue and raises the wake signal.
func (s *Scheduler) WakeHandle(handle uint64) {
	s.Queue.Push(handle)
	s.Signal.Raise()
}

// TakeScheduledTask pops the next scheduled handle, if any.
func (s *Scheduler) TakeScheduledTask() (uint64, bool) {
	return s.Queue.Pop()
}
