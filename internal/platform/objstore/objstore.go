// Package objstore writes finished HL7 message files to an S3-compatible
// bucket. Keys map directly to object keys.
package objstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the construction parameters for the message bucket. Endpoint
// and PathStyle exist for local stacks (MinIO, localstack); production relies
// on the default credentials chain.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	PathStyle bool
}

// Store is an S3-backed message file writer over a single bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New creates a message store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("destination bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put writes body under key, overwriting any previous object.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	contentType := "text/plain"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}
