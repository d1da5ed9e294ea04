package httpserver

import (
	"bytes"

	"github.com/asyncd/asyncd/internal/iofutures"
	"github.com/asyncd/asyncd/internal/runtime/alloc"
	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/sysio"
	"github.com/asyncd/asyncd/internal/wsproto"
	"github.com/asyncd/asyncd/pkg/logging"
)

// Handler is invoked for every plain HTTP (non-upgrade) request the
// connection task receives; it returns the full response bytes to write.
type Handler func(request []byte) []byte

type connState int

const (
	connRecvRequest connState = iota
	connDone
)

// Conn is the first task spawned for an accepted socket: it reads one
// request, decides whether it is a WebSocket upgrade, and either answers
// it directly or hands the connection off to a wsproto.Session for the
// rest of its lifetime.
type Conn struct {
	Reactor *reactor.Reactor
	Fd      int
	Handler Handler
	Echo    wsproto.Echo
	log     *logging.Logger

	state   connState
	acc     bytes.Buffer
	handoff task.Task
}

// NewConn creates a connection task for an accepted, non-blocking fd.
func NewConn(r *reactor.Reactor, fd int, handler Handler, echo wsproto.Echo, log *logging.Logger) *Conn {
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	return &Conn{Reactor: r, Fd: fd, Handler: handler, Echo: echo, log: log.WithComponent("http")}
}

// Advance implements task.Task. It loops through any chain of
// synchronously-completing steps (a request that arrives fully in one recv,
// a reply that fits in one send) within a single call, only returning
// Pending once a step genuinely has to wait on the reactor. The looping is
// plain control flow inside the one Advance call PollTaskSafe invoked, not
// re-entry into the task table, so the slot stays locked out only for the
// duration of this single poll.
func (c *Conn) Advance(cx *task.Cx) task.Poll {
	for {
		if c.handoff != nil {
			h := c.handoff
			c.handoff = nil
			result := h.Advance(cx)
			if result == task.Pending {
				c.handoff = h
				return task.Pending
			}
			if c.handoff != nil {
				// The step just completed synchronously and queued the
				// next one (e.g. a request was fully read and a reply or
				// a WebSocket handoff is now staged).
				continue
			}
			if c.state == connDone {
				return task.Completed
			}
			continue
		}

		switch c.state {
		case connRecvRequest:
			result := c.startRecv(cx)
			if result == task.Pending {
				return task.Pending
			}
			continue
		default:
			return task.Completed
		}
	}
}

func (c *Conn) startRecv(cx *task.Cx) task.Poll {
	buf := alloc.Bytes(2048)
	f := iofutures.NewRecvFuture(c.Reactor, c.Fd, buf, func(res iofutures.RecvResult) {
		if res.Err != nil || res.N == 0 {
			c.Reactor.UnregisterFd(c.Fd)
			sysio.Close(c.Fd)
			c.state = connDone
			return
		}
		c.acc.Write(buf[:res.N])
		request := c.acc.Bytes()

		if bytes.Contains(bytes.ToLower(request), []byte("upgrade: websocket")) {
			session := wsproto.NewSession(c.Reactor, c.Fd, c.Echo, c.log)
			c.handoff = &requeue{inner: session, firstChunk: append([]byte(nil), request...)}
			c.state = connDone
			return
		}

		resp := c.Handler(request)
		c.handoff = iofutures.NewSendFuture(c.Reactor, c.Fd, resp, func(error) {
			sysio.Close(c.Fd)
		})
		c.state = connDone
	})
	return f.Advance(cx)
}

// requeue feeds a handed-off session the bytes already consumed from the
// socket before delegating every subsequent poll straight to it.
type requeue struct {
	inner      task.Task
	firstChunk []byte
	primed     bool
}

func (r *requeue) Advance(cx *task.Cx) task.Poll {
	if !r.primed {
		r.primed = true
		if s, ok := r.inner.(*wsproto.Session); ok {
			s.Prime(r.firstChunk)
		}
	}
	return r.inner.Advance(cx)
}
