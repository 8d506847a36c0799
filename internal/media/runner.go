// Package media implements the transcription stages on top of external tools
// (yt-dlp, ffmpeg, basic-pitch, MuseScore) and MIDI/MusicXML encoders.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"
)

// commandResult captures one external command invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout, stderr and the exit code.
func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Command is a tool invocation prefix such as ["python3", "-m", "yt_dlp"].
type Command []string

// ParseCommand splits a configured command line using shell quoting rules.
func ParseCommand(line string) (Command, error) {
	parts, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return Command(parts), nil
}

// MustParseCommand is ParseCommand for static command lines.
func MustParseCommand(line string) Command {
	c, err := ParseCommand(line)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the executable.
func (c Command) Name() string {
	return c[0]
}

// run executes c with extra args and converts failures into a CommandError.
func (c Command) run(ctx context.Context, runner commandRunner, args ...string) (commandResult, error) {
	full := append(append([]string{}, c[1:]...), args...)
	res, err := runner.Run(ctx, c[0], full...)
	if err != nil {
		return res, &CommandError{Command: c[0], ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}

// CommandError is a failed external tool invocation.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

// maxStderr bounds the stderr excerpt kept in error messages.
const maxStderr = 300

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// lastLine returns the last non-empty line of s, truncated.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if len(last) > maxStderr {
		cut := maxStderr - 3
		for cut > 0 && !utf8.RuneStart(last[cut]) {
			cut--
		}
		last = last[:cut] + "..."
	}
	return last
}
