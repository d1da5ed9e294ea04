package reactor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/asyncd/asyncd/internal/runtime/wake"
)

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

func TestRegisterAndRemoveFd(t *testing.T) {
	sched := wake.NewScheduler(0)
	r := New(sched, nil)

	w1 := &countingWaker{}
	w2 := &countingWaker{}
	r.RegisterFdWaker(5, unix.POLLIN, w1)
	r.RegisterFdWaker(5, unix.POLLOUT, w2)

	wakers := r.removeFd(5)
	if len(wakers) != 2 {
		t.Fatalf("expected 2 wakers registered for fd 5, got %d", len(wakers))
	}

	if again := r.removeFd(5); again != nil {
		t.Fatalf("expected no wakers left for fd 5 after removal, got %v", again)
	}
}

func TestUnregisterFdDropsPendingWakers(t *testing.T) {
	sched := wake.NewScheduler(0)
	r := New(sched, nil)

	w := &countingWaker{}
	r.RegisterFdWaker(7, unix.POLLIN, w)
	r.UnregisterFd(7)

	if wakers := r.removeFd(7); wakers != nil {
		t.Fatalf("expected fd 7 to have no registration after UnregisterFd, got %v", wakers)
	}
}

func TestUnregisterFdSignalsEventfd(t *testing.T) {
	sched := wake.NewScheduler(0)
	r := New(sched, nil)

	r.RegisterFdWaker(9, unix.POLLIN, &countingWaker{})
	r.UnregisterFd(9)

	fd := sched.Signal.FD()
	if fd < 0 {
		t.Fatal("expected UnregisterFd to create and raise the wake signal")
	}
	var buf [8]byte
	if _, err := unix.Read(fd, buf[:]); err != nil {
		t.Fatalf("expected the eventfd to be readable after UnregisterFd, got %v", err)
	}
}

func TestUnregisterFdUnknownFdDoesNotSignal(t *testing.T) {
	sched := wake.NewScheduler(0)
	r := New(sched, nil)

	r.UnregisterFd(42)

	if fd := sched.Signal.FD(); fd >= 0 {
		t.Fatal("expected UnregisterFd on an unregistered fd to leave the wake signal untouched")
	}
}

func TestMultipleFdsTrackedIndependently(t *testing.T) {
	sched := wake.NewScheduler(0)
	r := New(sched, nil)

	r.RegisterFdWaker(1, unix.POLLIN, &countingWaker{})
	r.RegisterFdWaker(2, unix.POLLIN, &countingWaker{})

	snap := r.snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(snap))
	}

	r.removeFd(1)
	snap = r.snapshot()
	if len(snap) != 1 || snap[0].fd != 2 {
		t.Fatalf("expected only fd 2 to remain, got %v", snap)
	}
}
