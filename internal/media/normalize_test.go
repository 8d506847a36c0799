package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ffmpegWritesOutput creates the last argument as an empty file.
func ffmpegWritesOutput(_ string, args []string) (commandResult, error) {
	return commandResult{}, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
}

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("in.webm", "out.wav")
	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", "in.webm",
		"-vn", "-ac", "1", "-ar", "16000",
		"-af", "loudnorm=I=-20",
		"-c:a", "pcm_s16le",
		"out.wav",
	}, args)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		isolate bool
		want    string
	}{
		{"full mix", false, processedWAV},
		{"isolated", true, isolatedWAV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := testLayout(t)
			runner := &fakeRunner{handle: ffmpegWritesOutput}
			n := NewNormalizer(layout, Command{"ffmpeg"}, nil)
			n.runner = runner

			got, err := n.Normalize(context.Background(), "job1", "/tmp/raw.webm", tt.isolate)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(layout.JobUploadDir("job1"), tt.want), got)
			assert.FileExists(t, got)
			assert.Len(t, runner.Calls(), 1)
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	t.Run("ffmpeg fails", func(t *testing.T) {
		n := NewNormalizer(testLayout(t), Command{"ffmpeg"}, nil)
		n.runner = &fakeRunner{handle: func(string, []string) (commandResult, error) {
			return failWith("raw.webm: Invalid data found when processing input")
		}}

		_, err := n.Normalize(context.Background(), "job1", "raw.webm", false)
		assert.ErrorContains(t, err, "Invalid data found")
	})

	t.Run("no output written", func(t *testing.T) {
		n := NewNormalizer(testLayout(t), Command{"ffmpeg"}, nil)
		n.runner = &fakeRunner{}

		_, err := n.Normalize(context.Background(), "job1", "raw.webm", false)
		assert.ErrorContains(t, err, "no output")
	})
}

func TestWavDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, 1.5)

	d, err := wavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, d, 0.001)

	bogus := filepath.Join(t.TempDir(), "b.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("ID3\x03not a wav file at all"), 0o644))
	_, err = wavDuration(bogus)
	assert.ErrorIs(t, err, errNotWAV)
}
