// Package archive keeps the raw bytes of extracted documents in S3, keyed
// by content hash so a re-ingested attachment lands on the same object.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nickimizell/property-dashboard-sub000/internal/config"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archive stores document bytes under <prefix>/<hash[:2]>/<hash>.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// New creates an archive over an existing client.
func New(client S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// NewFromConfig loads the default AWS credential chain for the configured
// region. It returns nil, nil when archiving is disabled.
func NewFromConfig(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if !cfg.Enabled || cfg.Bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Printf("[Archive] bucket=%s prefix=%s region=%s", cfg.Bucket, cfg.Prefix, cfg.Region)
	return New(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for data.
func (a *S3Archive) Key(data []byte) string {
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	return path.Join(a.prefix, h[:2], h)
}

// Put uploads data and returns its key. Uploading the same bytes twice
// overwrites the object with identical content.
func (a *S3Archive) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := a.Key(data)
	in := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := a.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Ping checks that the bucket is reachable with the loaded credentials.
func (a *S3Archive) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}
