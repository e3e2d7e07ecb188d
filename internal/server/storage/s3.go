package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/logging"
)

// uploaderAPI and presignAPI are the slices of the AWS SDK the store uses;
// tests substitute fakes.
type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config carries the S3 connection settings.
type Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
	// OpTimeout bounds every single gateway call.
	OpTimeout time.Duration
}

// S3Store talks to an S3-compatible backend. Construction never fails: if the
// client cannot be built, the store comes up degraded and every operation
// returns common.ErrStorageUnavailable instead of crashing the process.
type S3Store struct {
	uploader  uploaderAPI
	presign   presignAPI
	bucket    string
	opTimeout time.Duration
}

func NewS3Store(ctx context.Context, cfg Config, logger logging.Logger) *S3Store {

	store := &S3Store{bucket: cfg.Bucket, opTimeout: cfg.OpTimeout}

	if cfg.Bucket == "" {
		logger.Error(ctx, "no S3 bucket configured, object store degraded")
		return store
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		logger.Error(ctx, "S3 client init failed, object store degraded", "error", err.Error())
		return store
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	store.uploader = manager.NewUploader(client)
	store.presign = s3.NewPresignClient(client)
	return store
}

// Put streams r into the bucket under key. The whole object is never held in
// memory: the uploader reads from r in parts.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	if s.uploader == nil {
		return common.ErrStorageUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", common.ErrStorageUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, common.ErrStorageUnavailable)
	}

	return req.URL, nil
}

func (s *S3Store) timeout() time.Duration {
	if s.opTimeout > 0 {
		return s.opTimeout
	}
	return 30 * time.Second
}
