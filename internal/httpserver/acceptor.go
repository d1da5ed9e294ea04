package httpserver

import (
	"github.com/asyncd/asyncd/internal/iofutures"
	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/worker"
	"github.com/asyncd/asyncd/internal/sysio"
	"github.com/asyncd/asyncd/internal/wsproto"
	"github.com/asyncd/asyncd/pkg/logging"
)

// Acceptor is the task that repeatedly accepts connections on a listening
// socket and spawns a Conn task for each one onto the shared worker pool.
// It never completes on its own; after every accept it starts a fresh
// accept attempt within the same task.
type Acceptor struct {
	Pool     *worker.Pool
	Reactor  *reactor.Reactor
	ListenFd int
	Handler  Handler
	Echo     wsproto.Echo
	log      *logging.Logger
}

// NewAcceptor creates an acceptor task bound to an already-listening,
// non-blocking socket.
func NewAcceptor(pool *worker.Pool, r *reactor.Reactor, listenFd int, handler Handler, echo wsproto.Echo, log *logging.Logger) *Acceptor {
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	return &Acceptor{
		Pool:     pool,
		Reactor:  r,
		ListenFd: listenFd,
		Handler:  handler,
		Echo:     echo,
		log:      log.WithComponent("acceptor"),
	}
}

func (a *Acceptor) onAccepted(res iofutures.AcceptResult) {
	if res.Err != nil {
		a.log.Warnf("accept failed: %v", res.Err)
		return
	}
	a.log.Debugf("accepted connection fd=%d", res.Fd)
	conn := NewConn(a.Reactor, res.Fd, a.Handler, a.Echo, a.log)
	a.Pool.Spawn(conn)
}

// Advance implements task.Task. Each successful accept spawns a new Conn
// task and a fresh AcceptFuture to keep listening; Advance itself never
// completes. An accept that is satisfied synchronously (a connection was
// already waiting) loops straight into the next accept attempt instead of
// returning to the scheduler.
func (a *Acceptor) Advance(cx *task.Cx) task.Poll {
	for {
		f := iofutures.NewAcceptFuture(a.Reactor, a.ListenFd, a.onAccepted)
		if f.Advance(cx) == task.Pending {
			return task.Pending
		}
	}
}

// Listen creates a non-blocking listening socket bound to ipv4:port.
func Listen(ipv4 [4]byte, port int) (int, error) {
	fd, err := sysio.NewNonblockingSocket()
	if err != nil {
		return -1, err
	}
	if err := sysio.Bind(fd, ipv4, port); err != nil {
		sysio.Close(fd)
		return -1, err
	}
	if err := sysio.Listen(fd); err != nil {
		sysio.Close(fd)
		return -1, err
	}
	return fd, nil
}
