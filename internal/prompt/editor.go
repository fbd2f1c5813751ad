package prompt

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	DefaultEditor = "vim"
	template      = "# Enter your prompt here\n"
)

// FromEditor opens a scratch file in editor and returns what the user wrote,
// minus lines starting with '#'. The editor is attached to the process's
// terminal. editor may carry arguments, as in "code --wait".
func FromEditor(ctx context.Context, editor string) (string, error) {
	f, err := os.CreateTemp("", "prompt-*.txt")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(template); err != nil {
		f.Close()
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close prompt file: %w", err)
	}

	fields := strings.Fields(editor)
	if len(fields) == 0 {
		fields = []string{DefaultEditor}
	}
	cmd := exec.CommandContext(ctx, fields[0], append(fields[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Debug().Str("editor", fields[0]).Str("file", path).Msg("opening editor")
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run editor %s: %w", fields[0], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return stripComments(string(data)), nil
}

func stripComments(s string) string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
