// Package sysio provides thin, semantically named wrappers around the
// golang.org/x/sys/unix calls the runtime and its collaborators need. It
// holds no state; it exists so callers never spell out raw syscall numbers
// or flag combinations more than once.
package sysio

import (
	"os/signal"

	"golang.org/x/sys/unix"
)

// NewNonblockingSocket creates a non-blocking TCP (SOCK_STREAM) socket.
func NewNonblockingSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Bind binds fd to ipv4:port.
func Bind(fd int, ipv4 [4]byte, port int) error {
	sa := &unix.SockaddrInet4{Port: port, Addr: ipv4}
	return unix.Bind(fd, sa)
}

// ListenBacklog is the default backlog passed to Listen.
const ListenBacklog = 128

// Listen marks fd as a passive socket accepting up to ListenBacklog queued
// connections.
func Listen(fd int) error {
	return unix.Listen(fd, ListenBacklog)
}

// Accept4Nonblock accepts a connection on fd, returning a non-blocking
// client socket. Returns unix.EAGAIN when no connection is pending.
func Accept4Nonblock(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK)
	return nfd, err
}

// ConnectNonblock begins a non-blocking connect to ipv4:port. Callers
// should expect unix.EINPROGRESS and wait for the fd to become writable.
func ConnectNonblock(fd int, ipv4 [4]byte, port int) error {
	sa := &unix.SockaddrInet4{Port: port, Addr: ipv4}
	return unix.Connect(fd, sa)
}

// Recv reads into buf from fd, returning unix.EAGAIN when nothing is
// available yet.
func Recv(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// Send writes buf to fd, returning unix.EAGAIN when the socket buffer is
// full.
func Send(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// IgnoreSigchld arranges for SIGCHLD to be ignored by this process, the Go
// analogue of installing a SIG_IGN disposition at entry. Zombies are still
// reaped explicitly by the reactor's non-blocking Wait4 loop; this only
// stops SIGCHLD delivery from interrupting anything.
func IgnoreSigchld() {
	signal.Ignore(unix.SIGCHLD)
}
