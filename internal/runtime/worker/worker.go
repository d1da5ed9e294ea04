// Package worker implements the outer scheduling loop each worker goroutine
// runs: drain the run queue, poll whatever handle comes off it, and block
// in the reactor when there is nothing scheduled.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
	"github.com/asyncd/asyncd/pkg/logging"
)

// Stats exposes a snapshot of the pool's outstanding work, mirroring the
// atomic-counter-plus-accessor idiom used throughout this codebase's worker
// pools.
type Stats struct {
	Outstanding int64
	Spawned     int
}

// Pool runs a fixed set of worker goroutines over a shared task table,
// scheduler, and reactor.
type Pool struct {
	Table   *task.Table
	Sched   *wake.Scheduler
	Reactor *reactor.Reactor
	Log     *logging.Logger

	outstanding atomic.Int64
	spawned     atomic.Int32

	wg sync.WaitGroup
}

// New creates a worker pool wired to the given table, scheduler, and
// reactor.
func New(table *task.Table, sched *wake.Scheduler, r *reactor.Reactor, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	table.SetScheduler(sched.WakeHandle)
	return &Pool{
		Table:   table,
		Sched:   sched,
		Reactor: r,
		Log:     log.WithComponent("worker"),
	}
}

// Spawn registers a task and counts it as outstanding work.
func (p *Pool) Spawn(t task.Task) uint64 {
	p.outstanding.Add(1)
	return p.Table.Spawn(t)
}

// StartWorkers spawns n additional worker goroutines and then runs the
// worker loop on the calling goroutine as well, so n+1 workers run when n
// are requested. It does not return.
func (p *Pool) StartWorkers(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(i, true)
	}
	p.spawned.Store(int32(n + 1))
	p.runWorker(n, false)
}

// StartWorkersAsync is StartWorkers without converting the caller into a
// worker; it returns once n worker goroutines have been launched, and the
// caller can wait on Wait() or keep doing other things.
func (p *Pool) StartWorkersAsync(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(i, true)
	}
	p.spawned.Store(int32(n))
}

// Wait blocks until every worker goroutine started via StartWorkersAsync
// has exited. The worker loop has no stop condition, so once any worker
// goroutine has been started Wait does not return.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(id int, tracked bool) {
	if tracked {
		defer p.wg.Done()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.Log.Debugf("worker %d starting", id)

	for {
		if handle, ok := p.Sched.TakeScheduledTask(); ok {
			waker := p.Table.CreateWaker(handle)
			cx := &task.Cx{Handle: handle, Waker: waker}
			if p.Table.PollTaskSafe(handle, cx) == task.Completed {
				p.outstanding.Add(-1)
			}
			continue
		}

		p.Reactor.PpollAndSchedule()
	}
}

// Stats returns a snapshot of the pool's current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Outstanding: p.outstanding.Load(),
		Spawned:     int(p.spawned.Load()),
	}
}
