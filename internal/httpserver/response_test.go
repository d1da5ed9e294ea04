package httpserver

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildResponseIncludesContentLengthAndBody(t *testing.T) {
	body := []byte("hello world")
	resp := BuildResponse("200 OK", "text/plain", body)

	if !bytes.HasPrefix(resp, []byte("HTTP/1.1 200 OK\r\n")) {
		t.Fatalf("expected status line prefix, got %q", resp)
	}
	if !bytes.Contains(resp, []byte("Content-Type: text/plain\r\n")) {
		t.Fatalf("expected content-type header, got %q", resp)
	}
	if !bytes.Contains(resp, []byte("Content-Length: 11\r\n")) {
		t.Fatalf("expected content-length 11, got %q", resp)
	}
	if !bytes.HasSuffix(resp, body) {
		t.Fatalf("expected response to end with body, got %q", resp)
	}
}

func TestOKBuilds200Response(t *testing.T) {
	resp := OK("text/html", []byte("<html></html>"))
	if !strings.HasPrefix(string(resp), "HTTP/1.1 200 OK") {
		t.Fatalf("expected a 200 status line, got %q", resp)
	}
}

func TestNotFoundBuilds404Response(t *testing.T) {
	resp := NotFound()
	if !strings.HasPrefix(string(resp), "HTTP/1.1 404 Not Found") {
		t.Fatalf("expected a 404 status line, got %q", resp)
	}
	if !strings.Contains(string(resp), "not found") {
		t.Fatalf("expected a not-found body, got %q", resp)
	}
}
