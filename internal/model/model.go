package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrNoArtifact = errors.New("conversion produced no model file")

// FileName derives the local GGUF name from a Hugging Face model id, e.g.
// "unsloth/mistral-7b" with "q4_k_m" becomes "mistral-7b.q4_k_m.gguf".
func FileName(modelID, quantization string) string {
	name := modelID
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return fmt.Sprintf("%s.%s.gguf", name, quantization)
}

// Converter downloads modelID and writes a quantized GGUF artifact into outDir.
type Converter interface {
	Convert(ctx context.Context, modelID, quantization, outDir string) error
}

// ExecConverter runs an external conversion tool as
// "<Command> --model <id> --quantization <q> --output-dir <dir>".
type ExecConverter struct {
	Command string
	Output  io.Writer // receives the tool's stdout and stderr; defaults to os.Stderr
}

func (c ExecConverter) Convert(ctx context.Context, modelID, quantization, outDir string) error {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	cmd := exec.CommandContext(ctx, c.Command,
		"--model", modelID,
		"--quantization", quantization,
		"--output-dir", outDir,
	)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", c.Command, err)
	}
	return nil
}

type Options struct {
	ModelID      string
	Quantization string
	Dir          string // where the GGUF file lives
}

// Ensure returns the path of the GGUF file for opts, converting the model
// first when the file is not there yet.
func Ensure(ctx context.Context, conv Converter, opts Options) (string, error) {
	target := filepath.Join(opts.Dir, FileName(opts.ModelID, opts.Quantization))

	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		log.Info().Str("path", target).Msg("GGUF model already exists")
		return target, nil
	}

	log.Info().
		Str("model", opts.ModelID).
		Str("quantization", opts.Quantization).
		Msg("GGUF model not found, starting download and conversion")

	tmp, err := os.MkdirTemp("", "gguf_conversion-*")
	if err != nil {
		return "", fmt.Errorf("create conversion dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := conv.Convert(ctx, opts.ModelID, opts.Quantization, tmp); err != nil {
		return "", fmt.Errorf("convert %s: %w", opts.ModelID, err)
	}

	artifact, err := findArtifact(tmp)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	log.Info().Str("from", artifact).Str("to", target).Msg("moving converted model")
	if err := moveFile(artifact, target); err != nil {
		return "", err
	}

	log.Info().Str("path", target).Msg("GGUF conversion complete")
	return target, nil
}

func findArtifact(dir string) (string, error) {
	for _, pattern := range []string{"*.bin", "*.gguf"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		sort.Strings(matches)
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Remove(src)
}
