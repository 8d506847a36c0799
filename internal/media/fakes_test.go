package media

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type call struct {
	Name string
	Args []string
}

// fakeRunner records calls and delegates to handle, which may create files.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	handle func(name string, args []string) (commandResult, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Name: name, Args: append([]string{}, args...)})
	f.mu.Unlock()
	if f.handle == nil {
		return commandResult{}, nil
	}
	return f.handle(name, args)
}

func (f *fakeRunner) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...)
}

var errExit = errors.New("exit status 1")

func failWith(stderr string) (commandResult, error) {
	return commandResult{Stderr: stderr, ExitCode: 1}, errExit
}

// writeWAV writes a silent 16 kHz mono PCM file of the given length.
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	const rate, bytesPerSample = SampleRate, 2
	dataLen := uint32(seconds * rate * bytesPerSample)

	var b strings.Builder
	le := func(v any) { require.NoError(t, binary.Write(&b, binary.LittleEndian, v)) }
	b.WriteString("RIFF")
	le(uint32(36 + dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	le(uint32(16))
	le(uint16(1)) // PCM
	le(uint16(1)) // mono
	le(uint32(rate))
	le(uint32(rate * bytesPerSample))
	le(uint16(bytesPerSample))
	le(uint16(16))
	b.WriteString("data")
	le(dataLen)
	b.WriteString(strings.Repeat("\x00", int(dataLen)))

	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func testLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	return Layout{UploadDir: root + "/uploads", OutputDir: root + "/output"}
}
