package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerArgs(t *testing.T) {
	s := &Server{Path: "/app/server", Model: "/model-store/m.gguf", ContextSize: 4096, Host: "0.0.0.0", Port: 8080, GPULayers: 99}

	assert.Equal(t, []string{
		"-m", "/model-store/m.gguf",
		"-c", "4096",
		"--host", "0.0.0.0",
		"--port", "8080",
		"-ngl", "99",
	}, s.Args())
	assert.Equal(t, "http://0.0.0.0:8080", s.Addr())
}

func TestServerArgsWithAPIKey(t *testing.T) {
	s := &Server{Path: "/app/server", Model: "m.gguf", ContextSize: 2048, Host: "127.0.0.1", Port: 9000, GPULayers: 0, APIKey: "k-123"}

	args := s.Args()
	assert.Equal(t, []string{"--api-key", "k-123"}, args[len(args)-2:])
	assert.NotContains(t, s.redacted(), "k-123")
	assert.Contains(t, s.redacted(), "--api-key [REDACTED]")
}

func script(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "server.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700))
	return path
}

func TestServerRunNotFound(t *testing.T) {
	s := &Server{Path: filepath.Join(t.TempDir(), "missing"), Stdout: io.Discard, Stderr: io.Discard}
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestServerRunExitCode(t *testing.T) {
	s := &Server{Path: script(t, "exit 4\n"), Stdout: io.Discard, Stderr: io.Discard}

	err := s.Run(context.Background())
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 4, exitErr.Code)
}

func TestServerRunClean(t *testing.T) {
	s := &Server{Path: script(t, "exit 0\n"), Stdout: io.Discard, Stderr: io.Discard}
	assert.NoError(t, s.Run(context.Background()))
}

func TestServerRunStopped(t *testing.T) {
	s := &Server{Path: script(t, "exec sleep 30\n"), Stdout: io.Discard, Stderr: io.Discard}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Less(t, time.Since(start), stopGrace)
}
