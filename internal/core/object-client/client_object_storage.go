package objectclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var ErrEmptyLocation = errors.New("empty storage location")

type S3Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	region     string
	bucket     string
}

var _ core.ObjectClient = (*S3Client)(nil)

// NewS3Client builds a read-only client. Static credentials are used when set,
// otherwise the default AWS chain. S3Endpoint switches to path-style addressing
// for MinIO and other compatible servers.
func NewS3Client(ctx context.Context, cfg *cfg.Config) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	slog.Info("s3 client ready", "region", cfg.AwsRegion, "bucket", cfg.BucketName, "endpoint", cfg.S3Endpoint)

	return &S3Client{
		client:     client,
		downloader: manager.NewDownloader(client),
		region:     cfg.AwsRegion,
		bucket:     cfg.BucketName,
	}, nil
}

// Bucket is the default bucket for bare keys.
func (c *S3Client) Bucket() string { return c.bucket }

// GetFile downloads the whole object into memory.
func (c *S3Client) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctxGet, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s failed: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

// ResolveLocation splits a stored location into bucket and key. It accepts
// s3://bucket/key, virtual-hosted S3 URLs (https://bucket.s3.region.amazonaws.com/key)
// and bare keys, which live in defaultBucket.
func ResolveLocation(ref, defaultBucket string) (bucket, key string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", ErrEmptyLocation
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, _ = strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		u, perr := url.Parse(ref)
		if perr != nil {
			return "", "", fmt.Errorf("parse storage url: %w", perr)
		}
		host := u.Hostname()
		if name, _, ok := strings.Cut(host, ".s3"); ok && name != "" {
			bucket = name
			key = strings.TrimPrefix(u.Path, "/")
		} else {
			// path-style: host/bucket/key
			bucket, key, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		}
		if unescaped, uerr := url.PathUnescape(key); uerr == nil {
			key = unescaped
		}
	default:
		bucket, key = defaultBucket, strings.TrimPrefix(ref, "/")
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("cannot resolve bucket and key from %q", ref)
	}
	return bucket, key, nil
}

// URI formats the canonical s3:// reference stored on chunks.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
