package outputsink

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3UploaderConfig configures an S3Uploader.
//
// Grounded on the teacher's S3 content store client construction: endpoint
// override support (for S3-compatible stores), static credentials, and a
// bucket-access check performed once at construction time rather than on
// every upload.
type S3UploaderConfig struct {
	EndpointURL     string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	MaxRetries      int
}

// S3Uploader implements outputsink.Uploader against an S3-compatible
// object store.
type S3Uploader struct {
	client *s3.Client
	bucket string
	endpoint string
}

// NewS3Uploader constructs an S3 client from cfg and verifies bucket access
// via HeadBucket before returning, matching the teacher's NewS3ContentStore
// construction-time verification.
func NewS3Uploader(ctx context.Context, cfg S3UploaderConfig) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRetryMaxAttempts(maxInt(cfg.MaxRetries, 3)),
	)
	if err != nil {
		return nil, fmt.Errorf("outputsink: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("outputsink: verify bucket %q access: %w", cfg.Bucket, err)
	}

	return &S3Uploader{client: client, bucket: cfg.Bucket, endpoint: cfg.EndpointURL}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Upload implements outputsink.Uploader.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (bucket, endpoint string, size int64, err error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", 0, err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("outputsink: put object: %w", err)
	}

	return u.bucket, u.endpoint, info.Size(), nil
}
