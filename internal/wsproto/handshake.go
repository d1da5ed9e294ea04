// Package wsproto implements the WebSocket handshake and frame codec used
// by the reactor-driven acceptor: a from-scratch implementation mirroring
// RFC 6455's minimum viable server surface (text/binary frames, ping/pong,
// close, and single-level fragmentation), rather than delegating to a
// net/http-based upgrade.
package wsproto

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
)

// guid is the fixed value RFC 6455 requires concatenating onto the
// client's Sec-WebSocket-Key before hashing.
const guid = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key header value.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(guid))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// FindHeaderValue extracts the value of the named header from a raw HTTP
// request, trimmed of surrounding whitespace. It returns false if the
// header is absent.
func FindHeaderValue(request []byte, name string) (string, bool) {
	lines := bytes.Split(request, []byte("\r\n"))
	prefix := []byte(name + ":")
	for _, line := range lines {
		if len(line) <= len(prefix) {
			continue
		}
		if bytes.EqualFold(line[:len(prefix)], prefix) {
			value := bytes.TrimSpace(line[len(prefix):])
			return string(value), true
		}
	}
	return "", false
}

// HandshakeResponse builds the HTTP/1.1 101 response that completes the
// upgrade for the given Sec-WebSocket-Key.
func HandshakeResponse(key string) []byte {
	accept := AcceptKey(key)
	return []byte(fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
		accept,
	))
}

// ErrNoKey is returned by Negotiate when the request carries no
// Sec-WebSocket-Key header.
var ErrNoKey = fmt.Errorf("wsproto: missing Sec-WebSocket-Key header")

// Negotiate builds the upgrade response for request, or returns ErrNoKey.
func Negotiate(request []byte) ([]byte, error) {
	key, ok := FindHeaderValue(request, "Sec-WebSocket-Key")
	if !ok {
		return nil, ErrNoKey
	}
	return HandshakeResponse(key), nil
}
