package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sink is the share action an exported file is handed to.
type Sink interface {
	Available() bool
	Share(ctx context.Context, path string) error
}

// NoSink is never available.
type NoSink struct{}

func (NoSink) Available() bool { return false }

func (NoSink) Share(context.Context, string) error {
	return fmt.Errorf("no share sink configured")
}

// DirSink copies exported files into an outbox directory.
type DirSink struct {
	Dir string
}

// Available reports whether the outbox directory exists or can be created.
func (s DirSink) Available() bool {
	if s.Dir == "" {
		return false
	}
	return os.MkdirAll(s.Dir, 0o755) == nil
}

func (s DirSink) Share(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	dst, err := os.CreateTemp(s.Dir, ".share-*")
	if err != nil {
		return err
	}
	tmp := dst.Name()
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.Dir, filepath.Base(path))); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// CommandRunner executes the share command with the exported path appended
// to args. Tests replace it to avoid spawning processes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandSink runs an external program such as "xdg-open" or "termux-share"
// with the exported file as its last argument.
type CommandSink struct {
	Command string // program and leading arguments, split on whitespace
	Runner  CommandRunner
	// LookPath overrides exec.LookPath.
	LookPath func(string) (string, error)
}

func (s CommandSink) fields() []string {
	return strings.Fields(s.Command)
}

// Available reports whether the program is on PATH.
func (s CommandSink) Available() bool {
	f := s.fields()
	if len(f) == 0 {
		return false
	}
	look := s.LookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look(f[0])
	return err == nil
}

func (s CommandSink) Share(ctx context.Context, path string) error {
	f := s.fields()
	if len(f) == 0 {
		return fmt.Errorf("empty share command")
	}
	run := s.Runner
	if run == nil {
		run = defaultCommandRunner
	}
	args := append(f[1:len(f):len(f)], path)
	out, err := run(ctx, f[0], args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", f[0], err, msg)
		}
		return fmt.Errorf("%s: %w", f[0], err)
	}
	return nil
}

// NewSink picks the sink for the configured share command and outbox
// directory. A command wins over a directory; neither gives NoSink.
func NewSink(command, dir string) Sink {
	switch {
	case strings.TrimSpace(command) != "":
		return CommandSink{Command: command}
	case dir != "":
		return DirSink{Dir: dir}
	default:
		return NoSink{}
	}
}
