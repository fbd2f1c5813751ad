package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrServerNotFound = errors.New("server executable not found")
	ErrStopped        = errors.New("server stopped")
)

const stopGrace = 10 * time.Second

// ExitError reports a server that exited on its own with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("server exited with status %d", e.Code)
}

// Server describes a llama.cpp server invocation.
type Server struct {
	Path        string
	Model       string
	ContextSize int
	Host        string
	Port        int
	GPULayers   int
	APIKey      string

	Stdout io.Writer
	Stderr io.Writer
}

func (s *Server) Args() []string {
	args := []string{
		"-m", s.Model,
		"-c", strconv.Itoa(s.ContextSize),
		"--host", s.Host,
		"--port", strconv.Itoa(s.Port),
		"-ngl", strconv.Itoa(s.GPULayers),
	}
	if s.APIKey != "" {
		args = append(args, "--api-key", s.APIKey)
	}
	return args
}

func (s *Server) Addr() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// Run starts the server and blocks until it exits. Cancelling ctx interrupts
// the server and waits up to stopGrace before killing it; Run then returns
// ErrStopped.
func (s *Server) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Path, s.Args()...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = orDefault(s.Stdout, os.Stdout)
	cmd.Stderr = orDefault(s.Stderr, os.Stderr)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopGrace

	log.Info().
		Str("model", s.Model).
		Str("addr", s.Addr()).
		Str("command", s.redacted()).
		Msg("starting llama.cpp server")

	err := cmd.Run()
	if ctx.Err() != nil {
		return ErrStopped
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w at %q", ErrServerNotFound, s.Path)
	case errors.As(err, &exitErr):
		return &ExitError{Code: exitErr.ExitCode()}
	default:
		return fmt.Errorf("run server: %w", err)
	}
}

// redacted renders the command line with the API key masked.
func (s *Server) redacted() string {
	args := s.Args()
	for i := range args {
		if i > 0 && args[i-1] == "--api-key" {
			args[i] = "[REDACTED]"
		}
	}
	return strings.Join(append([]string{s.Path}, args...), " ")
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
