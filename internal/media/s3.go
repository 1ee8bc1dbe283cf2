package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
)

// S3Store keeps material files in an S3 compatible bucket.
type S3Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	cfg        config.MediaConfig
	presignTTL time.Duration
	logger     *zap.Logger
}

// NewS3Store loads AWS credentials from the default chain and builds the client.
func NewS3Store(ctx context.Context, cfg config.MediaConfig, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("MEDIA_S3_BUCKET is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{
		client:     client,
		presign:    s3.NewPresignClient(client),
		cfg:        cfg,
		presignTTL: cfg.PresignTTL(),
		logger:     logger,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, upload Upload) (domain.MediaAsset, error) {
	key := ObjectKey(s.cfg.KeyPrefix, s.cfg.Folder, upload.Filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   upload.Body,
	}
	if upload.ContentType != "" {
		input.ContentType = aws.String(upload.ContentType)
	}
	if upload.Size > 0 {
		input.ContentLength = aws.Int64(upload.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return domain.MediaAsset{}, fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("media stored", zap.String("key", key), zap.String("field", string(upload.Field)))

	return domain.MediaAsset{
		PublicID:    key,
		URL:         s.objectURL(key),
		ContentType: upload.ContentType,
		SizeBytes:   upload.Size,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", publicID, err)
	}
	return nil
}

// DownloadURL presigns a GET that makes browsers save the object as filename.
func (s *S3Store) DownloadURL(ctx context.Context, publicID, filename string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(publicID),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", SanitizeFilename(filename)))
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", publicID, err)
	}
	return req.URL, nil
}

func (s *S3Store) objectURL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return s.cfg.PublicBaseURL + "/" + key
	case s.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
}
