package httpserver

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
	"github.com/asyncd/asyncd/internal/runtime/worker"
	"github.com/asyncd/asyncd/internal/sysio"
)

func TestListenBindsAndReturnsListeningSocket(t *testing.T) {
	fd, err := Listen([4]byte{127, 0, 0, 1}, 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer sysio.Close(fd)

	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	addr, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("unexpected sockaddr type %T", sa)
	}
	if addr.Port == 0 {
		t.Fatal("expected the kernel to have assigned a nonzero ephemeral port")
	}
}

func TestAcceptorSpawnsConnTaskOnAccept(t *testing.T) {
	table := task.NewTable(16)
	sched := wake.NewScheduler(0)
	r := reactor.New(sched, nil)
	pool := worker.New(table, sched, r, nil)

	listenFd, err := Listen([4]byte{127, 0, 0, 1}, 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer sysio.Close(listenFd)

	sa, err := unix.Getsockname(listenFd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	addr := sa.(*unix.SockaddrInet4)

	clientFd, err := sysio.NewNonblockingSocket()
	if err != nil {
		t.Fatalf("NewNonblockingSocket: %v", err)
	}
	defer sysio.Close(clientFd)
	_ = sysio.ConnectNonblock(clientFd, addr.Addr, addr.Port)

	acceptor := NewAcceptor(pool, r, listenFd, func([]byte) []byte { return OK("text/plain", nil) }, nil, nil)

	before := pool.Stats().Outstanding
	cx := &task.Cx{Waker: fakeWaker{}}
	if result := acceptor.Advance(cx); result != task.Pending {
		t.Fatalf("expected the acceptor to keep listening (Pending), got %v", result)
	}
	if after := pool.Stats().Outstanding; after != before+1 {
		t.Fatalf("expected one additional outstanding task after accept, got before=%d after=%d", before, after)
	}
}
