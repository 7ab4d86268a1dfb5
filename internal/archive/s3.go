package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"promptbank/internal/config"
	"promptbank/internal/model"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Archiver stores a copy of a bulk operation before it is purged
type Archiver interface {
	Archive(ctx context.Context, op *model.BulkOperation) (string, error)
	TestConnection(ctx context.Context) error
}

// Uploader is the part of manager.Uploader the archive needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Archiver struct {
	s3       *s3.Client
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Archiver builds an archiver from the default AWS credential chain
func NewS3Archiver(ctx context.Context, cfg config.AWSConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("aws bucket is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Archiver{
		s3:       client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.ArchivePrefix,
	}, nil
}

// NewWithUploader builds an archiver over an existing uploader
func NewWithUploader(uploader Uploader, bucket, prefix string) Archiver {
	return &s3Archiver{uploader: uploader, bucket: bucket, prefix: prefix}
}

// Key returns the object key an operation is archived under
func Key(prefix string, op *model.BulkOperation) string {
	day := op.UpdatedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, op.ID+".json")
}

func (a *s3Archiver) Archive(ctx context.Context, op *model.BulkOperation) (string, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("failed to encode bulk operation %s: %w", op.ID, err)
	}

	key := Key(a.prefix, op)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"operation-id":   op.ID,
			"operation-type": string(op.OperationType),
			"status":         string(op.Status),
			"archived-at":    time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	log.Debug().Str("operationId", op.ID).Str("key", key).Msg("Archived bulk operation")
	return key, nil
}

func (a *s3Archiver) TestConnection(ctx context.Context) error {
	if a.s3 == nil {
		return nil
	}

	// Listing a single key is enough to prove bucket access
	_, err := a.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.prefix),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Str("bucket", a.bucket).Msg("AWS S3 Test Connection")

	return err
}
