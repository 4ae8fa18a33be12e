// Package archive uploads completed backtest and optimization artifacts to
// S3-compatible object storage (Cloudflare R2 included, since R2 speaks the
// S3 API) and prunes old ones. Ported from
// internal/reliability/r2_backup_service.go's R2BackupService, generalized
// from whole-database backups to per-run artifact archives and pointed at
// aws-sdk-go-v2's S3 client directly (the teacher's own R2Client wrapper
// wasn't present to port from, so this talks to the SDK the way
// aws-sdk-go-v2's own S3 manager examples do).
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig configures the S3-compatible object store an archiver
// uploads to. Endpoint and Region follow R2's conventions (a custom
// endpoint URL, region "auto") but work unmodified against real AWS S3.
type ClientConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Client wraps an S3 client plus an upload/download manager for a single
// bucket.
type Client struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewClient builds a Client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{
		s3:       client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Upload streams body (of the given size) to key in the configured bucket.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	return nil
}

// ObjectSummary is the subset of S3 object metadata the archiver needs.
type ObjectSummary struct {
	Key  string
	Size int64
}

// List returns every object under the given key prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	var out []ObjectSummary
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			size := int64(0)
			if obj.Size != nil {
				size = *obj.Size
			}
			out = append(out, ObjectSummary{Key: *obj.Key, Size: size})
		}
	}
	return out, nil
}

// Delete removes key from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", key, err)
	}
	return nil
}
