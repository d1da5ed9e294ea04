package sysio

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewNonblockingSocketSetsNonblockAndReuseaddr(t *testing.T) {
	fd, err := NewNonblockingSocket()
	if err != nil {
		t.Fatalf("NewNonblockingSocket: %v", err)
	}
	defer Close(fd)

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("fcntl: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Fatal("expected the socket to be non-blocking")
	}

	reuse, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR)
	if err != nil {
		t.Fatalf("getsockopt: %v", err)
	}
	if reuse == 0 {
		t.Fatal("expected SO_REUSEADDR to be set on the socket")
	}
}

func TestBindListenAcceptRoundTrip(t *testing.T) {
	listenFd, err := NewNonblockingSocket()
	if err != nil {
		t.Fatalf("NewNonblockingSocket: %v", err)
	}
	defer Close(listenFd)

	if err := Bind(listenFd, [4]byte{127, 0, 0, 1}, 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := Listen(listenFd); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if _, err := Accept4Nonblock(listenFd); err != unix.EAGAIN {
		t.Fatalf("expected EAGAIN with no pending connection, got %v", err)
	}
}

func TestIgnoreSigchldDoesNotPanic(t *testing.T) {
	IgnoreSigchld()
}
