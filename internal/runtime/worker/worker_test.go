package worker

import (
	"testing"

	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
)

// These tests drive the scheduler/table wiring directly, the way a worker
// goroutine's inner loop would, without starting real worker goroutines:
// StartWorkers never returns (workers run forever), so a test that wants
// deterministic completion polls the run queue itself instead.
func TestPoolWiresTableToScheduler(t *testing.T) {
	table := task.NewTable(16)
	sched := wake.NewScheduler(0)
	r := reactor.New(sched, nil)
	pool := New(table, sched, r, nil)

	ran := false
	pool.Spawn(task.TaskFunc(func(cx *task.Cx) task.Poll {
		ran = true
		return task.Completed
	}))

	if pool.Stats().Outstanding != 1 {
		t.Fatalf("expected 1 outstanding task after spawn, got %d", pool.Stats().Outstanding)
	}

	handle, ok := sched.TakeScheduledTask()
	if !ok {
		t.Fatal("expected the spawned task to have been scheduled")
	}

	cx := &task.Cx{Handle: handle, Waker: table.CreateWaker(handle)}
	if result := table.PollTaskSafe(handle, cx); result != task.Completed {
		t.Fatalf("expected Completed, got %v", result)
	}
	if !ran {
		t.Fatal("expected the task to have run")
	}
}

func TestPoolOutstandingCountTracksCompletion(t *testing.T) {
	table := task.NewTable(16)
	sched := wake.NewScheduler(0)
	r := reactor.New(sched, nil)
	pool := New(table, sched, r, nil)

	const n = 50
	for i := 0; i < n; i++ {
		pool.Spawn(task.TaskFunc(func(cx *task.Cx) task.Poll { return task.Completed }))
	}
	if pool.Stats().Outstanding != n {
		t.Fatalf("expected %d outstanding, got %d", n, pool.Stats().Outstanding)
	}

	for i := 0; i < n; i++ {
		handle, ok := sched.TakeScheduledTask()
		if !ok {
			t.Fatalf("expected a scheduled handle at iteration %d", i)
		}
		cx := &task.Cx{Handle: handle, Waker: table.CreateWaker(handle)}
		if table.PollTaskSafe(handle, cx) == task.Completed {
			pool.outstanding.Add(-1)
		}
	}

	if pool.Stats().Outstanding != 0 {
		t.Fatalf("expected 0 outstanding after draining, got %d", pool.Stats().Outstanding)
	}
}
