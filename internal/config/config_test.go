package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, cfg.BindAddress)
}

func TestParseArgsPositional(t *testing.T) {
	cfg, err := ParseArgs([]string{"4", "127.0.0.1", "9090"})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, cfg.BindAddress)
	assert.Equal(t, 9090, cfg.Port)
}

func TestParseArgsInvalidWorkerCount(t *testing.T) {
	_, err := ParseArgs([]string{"not-a-number"})
	assert.Error(t, err, "expected an error for a non-numeric worker count")
}

func TestParseArgsInvalidAddress(t *testing.T) {
	_, err := ParseArgs([]string{"4", "not.an.ip"})
	assert.Error(t, err, "expected an error for an invalid IPv4 address")
}

func TestParseArgsFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{"-log", "/tmp/custom.log", "-arena-size", "1024", "2"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.log", cfg.LogPath)
	assert.Equal(t, 1024, cfg.ArenaSize)
	assert.Equal(t, 2, cfg.WorkerCount)
}
