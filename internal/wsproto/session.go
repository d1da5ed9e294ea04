package wsproto

import (
	"bytes"

	"github.com/asyncd/asyncd/internal/iofutures"
	"github.com/asyncd/asyncd/internal/runtime/alloc"
	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/sysio"
	"github.com/asyncd/asyncd/pkg/logging"
)

// Echo is invoked with each complete text/binary message a session
// receives; its return value is sent back as the echo payload.
type Echo func(opcode byte, payload []byte) []byte

type sessionState int

const (
	stateRecvRequest sessionState = iota
	stateRecvFrames
	stateDone
)

// Session drives one accepted connection through the HTTP upgrade
// handshake and then an indefinite read/echo/ping frame loop, the way the
// original implementation's accept_and_run drove a single fd end to end.
// It implements task.Task so it runs entirely on the worker pool without
// blocking any goroutine on I/O.
type Session struct {
	Reactor *reactor.Reactor
	Fd      int
	Echo    Echo
	log     *logging.FieldLogger

	state sessionState
	acc   bytes.Buffer

	fragOpcode byte
	fragging   bool
	fragBuf    bytes.Buffer

	pending task.Task
}

// NewSession creates a WebSocket session over an already-accepted,
// non-blocking socket fd.
func NewSession(r *reactor.Reactor, fd int, echo Echo, log *logging.Logger) *Session {
	if echo == nil {
		echo = func(_ byte, payload []byte) []byte { return payload }
	}
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	return &Session{Reactor: r, Fd: fd, Echo: echo, log: log.WithComponent("ws").WithField("fd", fd)}
}

// Prime seeds the session's accumulated-bytes buffer with data already
// read off the socket by an upstream handler (e.g. httpserver.Conn, which
// must peek at the request to decide whether it's an upgrade before
// handing the connection off). It must be called before the first Advance.
func (s *Session) Prime(data []byte) {
	s.acc.Write(data)
}

// Advance implements task.Task. It runs a small state machine, delegating
// each blocking step to an iofutures future. A pending handshake send is
// kept in s.pending and resumed through its own Advance when the session
// is polled again; a receive that returned Pending is not kept, and the
// next poll issues a fresh receive (with a fresh buffer) for the current
// state. A future that completes
// synchronously (no wait was needed) loops back around rather than
// returning control to the scheduler, so e.g. a handshake response that
// fits in the socket's send buffer flows straight into the frame-recv
// state without an extra round trip through the run queue. This is safe
// re-entrancy, not recursion into PollTaskSafe: the loop body still runs
// under the single Advance call the table invoked, so the slot's mutex is
// only taken and released once per real poll.
func (s *Session) Advance(cx *task.Cx) task.Poll {
	for {
		var result task.Poll

		if s.pending != nil {
			p := s.pending
			s.pending = nil
			result = p.Advance(cx)
		} else {
			switch s.state {
			case stateRecvRequest:
				if s.acc.Len() > 0 && s.tryNegotiate(cx) {
					continue
				}
				result = s.startRecvRequest(cx)
			case stateRecvFrames:
				result = s.startRecvFrames(cx)
			default:
				return task.Completed
			}
		}

		if result == task.Pending {
			return task.Pending
		}
		if s.state == stateDone && s.pending == nil {
			return task.Completed
		}
	}
}

func (s *Session) startRecvRequest(cx *task.Cx) task.Poll {
	buf := alloc.Bytes(4096)
	f := iofutures.NewRecvFuture(s.Reactor, s.Fd, buf, func(res iofutures.RecvResult) {
		if res.Err != nil || res.N == 0 {
			s.closeConn()
			s.state = stateDone
			return
		}
		s.acc.Write(buf[:res.N])
		s.tryNegotiate(cx)
	})
	return f.Advance(cx)
}

// tryNegotiate attempts the handshake against whatever has accumulated in
// s.acc so far. It reports whether it produced an outcome (success or
// fatal failure); if it returns false, the caller should keep reading.
func (s *Session) tryNegotiate(cx *task.Cx) bool {
	resp, err := Negotiate(s.acc.Bytes())
	if err != nil {
		if err == ErrNoKey {
			return false
		}
		s.log.Warn("handshake failed, closing")
		s.closeConn()
		s.state = stateDone
		return true
	}
	s.acc.Reset()
	s.pending = iofutures.NewSendFuture(s.Reactor, s.Fd, resp, func(err error) {
		if err != nil {
			s.closeConn()
			s.state = stateDone
			return
		}
		s.state = stateRecvFrames
	})
	return true
}

func (s *Session) startRecvFrames(cx *task.Cx) task.Poll {
	buf := alloc.Bytes(4096)
	f := iofutures.NewRecvFuture(s.Reactor, s.Fd, buf, func(res iofutures.RecvResult) {
		if res.Err != nil || res.N == 0 {
			s.closeConn()
			s.state = stateDone
			return
		}
		s.acc.Write(buf[:res.N])
		s.processFrames()
	})
	return f.Advance(cx)
}

func (s *Session) processFrames() {
	for {
		frame, ok := ParseFrame(s.acc.Bytes())
		if !ok {
			return
		}
		remaining := s.acc.Bytes()[frame.Consumed:]
		kept := append([]byte(nil), remaining...)
		s.acc.Reset()
		s.acc.Write(kept)

		switch {
		case frame.Opcode == OpContinuation:
			if !s.fragging {
				continue
			}
			s.fragBuf.Write(frame.Payload)
			if frame.Fin {
				op := s.fragOpcode
				full := append([]byte(nil), s.fragBuf.Bytes()...)
				s.fragBuf.Reset()
				s.fragging = false
				s.sendEcho(op, full)
			}
		case frame.Opcode == OpText || frame.Opcode == OpBinary:
			if frame.Fin {
				s.sendEcho(frame.Opcode, frame.Payload)
			} else {
				s.fragging = true
				s.fragOpcode = frame.Opcode
				s.fragBuf.Reset()
				s.fragBuf.Write(frame.Payload)
			}
		case frame.Opcode == OpClose:
			s.closeConn()
			s.state = stateDone
			return
		case frame.Opcode == OpPing:
			pong := EncodePong(frame.Payload)
			sysio.Send(s.Fd, pong)
		default:
			// ignore other opcodes
		}
	}
}

func (s *Session) sendEcho(opcode byte, payload []byte) {
	reply := s.Echo(opcode, payload)
	frame := EncodeFrame(true, opcode, reply)
	sysio.Send(s.Fd, frame)
	sysio.Send(s.Fd, EncodePing())
}

func (s *Session) closeConn() {
	s.Reactor.UnregisterFd(s.Fd)
	sysio.Close(s.Fd)
}
