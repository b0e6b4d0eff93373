package artifact

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink receives every artifact the writer stores locally. path is the
// manifest-relative artifact path; unit is empty for the manifest itself.
type Sink interface {
	Publish(unit, path string, data []byte) error
}

// S3Sink publishes written artifacts to an S3 bucket. Artifact keys are
// content-addressed (the hash is part of the filename), so an existing
// object with the same key is already identical and the upload is
// skipped; the manifest key is fixed and always rewritten.
type S3Sink struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewS3Sink creates a sink publishing under prefix in bucket.
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	sink := artifact.NewS3Sink(s3.NewFromConfig(cfg), "my-bucket", "ui/")
func NewS3Sink(client *s3.Client, bucket, prefix string) *S3Sink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Sink{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the per-request timeout.
func (s *S3Sink) WithTimeout(d time.Duration) *S3Sink {
	s.timeout = d
	return s
}

// Publish uploads one artifact or the manifest.
func (s *S3Sink) Publish(unit, path string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.prefix + path

	if unit != "" {
		// Content-addressed key: a head hit means the exact bytes are
		// already there.
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return nil
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(path)),
	})
	return err
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".mjs"), strings.HasSuffix(path, ".js"):
		return "text/javascript"
	}
	return "application/octet-stream"
}
