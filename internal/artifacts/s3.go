// Package artifacts mirrors finished job artifacts to S3.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI is the subset of the S3 client used by S3Mirror.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// contentTypes covers artifact extensions missing from the system MIME table.
var contentTypes = map[string]string{
	".mid":      "audio/midi",
	".musicxml": "application/vnd.recordare.musicxml+xml",
	".pdf":      "application/pdf",
}

// S3Mirror uploads artifacts under <prefix><job_id>/<file>.
type S3Mirror struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Mirror creates a mirror using the default AWS credential chain.
func NewS3Mirror(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*S3Mirror, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Mirror(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

func newS3Mirror(client putObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key for a job artifact.
func (m *S3Mirror) Key(jobID, file string) string {
	return path.Join(m.prefix, jobID, filepath.Base(file))
}

// Upload puts the file at localPath into the bucket.
func (m *S3Mirror) Upload(ctx context.Context, jobID, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	key := m.Key(jobID, localPath)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}

	m.logger.Debug("artifact mirrored", "job_id", jobID, "bucket", m.bucket, "key", key)
	return nil
}

// ContentType returns the MIME type served for an artifact file name.
func ContentType(name string) string {
	ext := filepath.Ext(name)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
