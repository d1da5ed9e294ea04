// Package httpserver provides the request-routing and connection-accepting
// layer sitting above the task runtime: a gorilla/mux router for the
// management surface (stats, health, browser-facing WebSocket upgrade) and
// a raw, reactor-driven acceptor loop for the low-level fd path that feeds
// internal/wsproto sessions directly.
package httpserver

import "fmt"

// BuildResponse builds a minimal HTTP/1.1 response with a Content-Type and
// Content-Length header, mirroring the original implementation's
// hand-assembled header construction.
func BuildResponse(status string, contentType string, body []byte) []byte {
	header := fmt.Sprintf(
		"HTTP/1.1 %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		status, contentType, len(body),
	)
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}

// OK builds a 200 response with the given content type.
func OK(contentType string, body []byte) []byte {
	return BuildResponse("200 OK", contentType, body)
}

// NotFound builds a 404 response.
func NotFound() []byte {
	return BuildResponse("404 Not Found", "text/plain", []byte("not found"))
}
