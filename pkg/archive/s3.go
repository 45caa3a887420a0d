package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the object operations [S3] needs. The [s3.Client]
// type satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 implements Archive against Amazon S3 or any S3-compatible store
// (MinIO, R2, etc.). Paths map to object keys under an optional prefix.
type S3 struct {
	client S3Client
	bucket string
	prefix string
}

// S3Config describes an S3-compatible archive bucket. Credentials come
// from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY in the environment.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

// NewS3 creates an S3-backed archive from a pre-configured client.
func NewS3(client S3Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// NewS3FromConfig builds the S3 client itself. A non-empty Endpoint
// switches to path-style addressing so MinIO-style endpoints work.
func NewS3FromConfig(cfg S3Config) *S3 {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: envCredentials{},
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return NewS3(s3.New(opts), cfg.Bucket, cfg.Prefix)
}

func (s *S3) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Save uploads the object via PutObject.
func (s *S3) Save(ctx context.Context, path string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", path, err)
	}
	return nil
}

// Open fetches the object via GetObject. Missing keys yield an error
// wrapping os.ErrNotExist.
func (s *S3) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("archive: open %s: %w", path, os.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

// Remove deletes the object. S3 DeleteObject already succeeds for
// missing keys.
func (s *S3) Remove(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	return err
}

// isNotFound reports whether err says the object does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// envCredentials resolves static credentials from the environment, the
// only credential source scribed supports.
type envCredentials struct{}

func (envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("archive: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are not set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

var _ Archive = (*S3)(nil)
