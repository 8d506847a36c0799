package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	key, bucket, contentType string
	body                     []byte
	err                      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	f.body = body
	return &s3.PutObjectOutput{}, err
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcription.mid")
	require.NoError(t, os.WriteFile(path, []byte("MThd"), 0o644))

	fake := &fakeS3{}
	m := newS3Mirror(fake, "scores", "sheetcast/", nil)

	require.NoError(t, m.Upload(context.Background(), "job1", path))
	assert.Equal(t, "scores", fake.bucket)
	assert.Equal(t, "sheetcast/job1/transcription.mid", fake.key)
	assert.Equal(t, "audio/midi", fake.contentType)
	assert.Equal(t, []byte("MThd"), fake.body)
}

func TestUploadErrors(t *testing.T) {
	m := newS3Mirror(&fakeS3{}, "scores", "", nil)
	err := m.Upload(context.Background(), "job1", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "open artifact")

	path := filepath.Join(t.TempDir(), "transcription.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	m = newS3Mirror(&fakeS3{err: errors.New("AccessDenied")}, "scores", "", nil)
	err = m.Upload(context.Background(), "job1", path)
	assert.ErrorContains(t, err, "put s3://scores/job1/transcription.pdf")
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"transcription.mid":      "audio/midi",
		"transcription.musicxml": "application/vnd.recordare.musicxml+xml",
		"transcription.pdf":      "application/pdf",
		"notes.unknownext":       "application/octet-stream",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ContentType(name))
		})
	}
}
