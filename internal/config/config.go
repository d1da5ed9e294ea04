// Package config parses the runtime's positional startup arguments:
// worker count, bind address, and listen port, mirroring the original
// implementation's argv-driven main_trampoline.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Defaults mirror the original's main_trampoline fallbacks.
const (
	DefaultWorkerCount = 16
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 8000
	DefaultLogPath     = "/tmp/async-nostd.log"
	DefaultArenaSize   = 16 * 1024 * 1024
)

// Config holds the parsed startup configuration.
type Config struct {
	WorkerCount int
	BindAddress [4]byte
	Port        int
	LogPath     string
	ArenaSize   int
}

// ParseArgs parses args (normally os.Args[1:]) the way the original binary
// reads argc/argv: up to three positional arguments (worker count, bind
// IP, port), plus standard Go flags for the log path and arena size that
// the original hard-coded as build-time constants.
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("asyncd", flag.ContinueOnError)
	logPath := fs.String("log", DefaultLogPath, "diagnostic log file path")
	arenaSize := fs.Int("arena-size", DefaultArenaSize, "bump allocator arena size in bytes")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	positional := fs.Args()
	cfg := &Config{
		WorkerCount: DefaultWorkerCount,
		Port:        DefaultPort,
		LogPath:     *logPath,
		ArenaSize:   *arenaSize,
	}

	bindAddress := DefaultBindAddress

	if len(positional) > 0 {
		n, err := strconv.Atoi(positional[0])
		if err != nil {
			return nil, fmt.Errorf("config: invalid worker count %q: %w", positional[0], err)
		}
		cfg.WorkerCount = n
	}
	if len(positional) > 1 {
		bindAddress = positional[1]
	}
	if len(positional) > 2 {
		n, err := strconv.Atoi(positional[2])
		if err != nil {
			return nil, fmt.Errorf("config: invalid port %q: %w", positional[2], err)
		}
		cfg.Port = n
	}

	ip, err := parseIPv4(bindAddress)
	if err != nil {
		return nil, err
	}
	cfg.BindAddress = ip

	return cfg, nil
}

// parseIPv4 parses a dotted-decimal IPv4 address the way the original's
// parse_cstring_ip helper did: four decimal octets separated by dots.
func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return out, fmt.Errorf("config: invalid IPv4 address %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return out, fmt.Errorf("config: invalid IPv4 address %q", s)
		}
		out[i] = byte(n)
	}
	return out, nil
}
