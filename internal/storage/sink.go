package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/churn-radar/internal/config"
)

// Sink receives exported artifacts.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Location describes where a key ends up, for logs and manifests.
	Location(key string) string
}

// ObjectPutter is the subset of the S3 client the exporter uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewSink builds the sink described by cfg. "aws" exports to S3; anything
// else writes under LocalPath.
func NewSink(ctx context.Context, cfg config.StorageConfig) (Sink, error) {
	if cfg.Type != "aws" {
		return NewLocalSink(cfg.LocalPath)
	}
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("storage: s3_bucket is required for aws storage")
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Sink(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// LoadAWSConfig resolves AWS settings for cfg. Static keys win over the
// profile, which wins over the default credential chain.
func LoadAWSConfig(ctx context.Context, cfg config.StorageConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case cfg.GetAWSProfile() != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.GetAWSProfile()))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// ParseDestination turns an -out style argument into a sink: s3://bucket/prefix
// or a local directory.
func ParseDestination(ctx context.Context, dest string, base config.StorageConfig) (Sink, error) {
	if rest, ok := strings.CutPrefix(dest, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		base.Type = "aws"
		base.S3Bucket = bucket
		base.S3Prefix = prefix
		return NewSink(ctx, base)
	}
	if dest != "" {
		base.Type = "local"
		base.LocalPath = dest
	}
	return NewSink(ctx, base)
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	root string
}

// NewLocalSink creates root if needed.
func NewLocalSink(root string) (*LocalSink, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &LocalSink{root: root}, nil
}

func (s *LocalSink) Put(_ context.Context, key string, body []byte, _ string) error {
	p := s.Location(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, body, 0644)
}

func (s *LocalSink) Location(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// S3Sink writes artifacts under a bucket prefix.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Sink wraps an S3 client.
func NewS3Sink(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Sink) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

func (s *S3Sink) Location(key string) string {
	return "s3://" + s.bucket + "/" + s.key(key)
}
