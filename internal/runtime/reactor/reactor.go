// Package reactor multiplexes operating-system readiness events with
// ppoll(2) and dispatches them to the wakers registered for each file
// descriptor.
package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
	"github.com/asyncd/asyncd/pkg/logging"
)

// errorMask are the revents bits that indicate the descriptor is no longer
// usable for the registered events: POLLERR|POLLHUP|POLLNVAL.
const errorMask = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

type registration struct {
	fd      int
	events  int16
	wakers  []task.Waker
}

// Reactor owns the fd -> waker registrations and drives the ppoll loop that
// resolves them against real readiness.
type Reactor struct {
	mu   sync.Mutex
	regs []registration

	sched *wake.Scheduler
	log   *logging.Logger
}

// New creates a reactor that schedules woken handles through sched.
func New(sched *wake.Scheduler, log *logging.Logger) *Reactor {
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	return &Reactor{sched: sched, log: log.WithComponent("reactor")}
}

// RegisterFdWaker requests that w be woken the next time fd becomes ready
// for any of events (a POLLIN/POLLOUT bitmask). Registrations are
// edge-triggered: once delivered, the registration is removed and must be
// re-added by the task if it wants to wait again.
func (r *Reactor) RegisterFdWaker(fd int, events int16, w task.Waker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.regs {
		if r.regs[i].fd == fd {
			r.regs[i].events |= events
			r.regs[i].wakers = append(r.regs[i].wakers, w)
			return
		}
	}
	r.regs = append(r.regs, registration{fd: fd, events: events, wakers: []task.Waker{w}})
}

// UnregisterFd drops any pending registration for fd, e.g. on close, and
// signals the event descriptor so a reactor currently blocked in ppoll on a
// pollset that still includes fd wakes up and rebuilds it.
func (r *Reactor) UnregisterFd(fd int) {
	r.mu.Lock()
	removed := false
	for i := range r.regs {
		if r.regs[i].fd == fd {
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			removed = true
			break
		}
	}
	r.mu.Unlock()

	if removed {
		r.sched.Signal.Raise()
	}
}

func (r *Reactor) snapshot() []registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registration, len(r.regs))
	copy(out, r.regs)
	return out
}

func (r *Reactor) removeFd(fd int) []task.Waker {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.regs {
		if r.regs[i].fd == fd {
			wakers := r.regs[i].wakers
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			return wakers
		}
	}
	return nil
}

func reapZombies() {
	var status unix.WaitStatus
	for {
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
	}
}

// PpollAndSchedule runs a single iteration of the poll cycle: reap exited
// children, block in ppoll until the eventfd or a registered descriptor is
// ready, then dispatch wakers for whatever became ready.
func (r *Reactor) PpollAndSchedule() {
	reapZombies()

	snapshot := r.snapshot()

	eventFd, err := r.sched.Signal.Ensure()
	if err != nil {
		// Degraded fallback: no way to be woken by a scheduling event, so
		// fall back to a short sleep rather than blocking forever.
		time.Sleep(10 * time.Millisecond)
		return
	}

	fds := make([]unix.PollFd, 0, len(snapshot)+1)
	fds = append(fds, unix.PollFd{Fd: int32(eventFd), Events: unix.POLLIN})
	for _, reg := range snapshot {
		fds = append(fds, unix.PollFd{Fd: int32(reg.fd), Events: reg.events})
	}

	n, err := unix.Ppoll(fds, nil, nil)
	if err != nil || n == 0 {
		return
	}

	if fds[0].Revents != 0 {
		r.sched.Signal.Drain()
	}

	for _, pfd := range fds[1:] {
		if pfd.Revents == 0 {
			continue
		}
		if pfd.Revents&errorMask != 0 {
			r.log.Warn("fd readiness reports error/hangup", map[string]interface{}{
				"fd":      pfd.Fd,
				"revents": pfd.Revents,
			})
		}
		wakers := r.removeFd(int(pfd.Fd))
		for _, w := range wakers {
			w.Wake()
		}
	}
}
