package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/CzarCx/qr-brain/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoBucket is returned when storage is not configured
var ErrNoBucket = errors.New("no S3 bucket configured")

// putter is the part of the S3 client the uploader needs
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores CSV exports and reports in S3
type Uploader struct {
	client           putter
	bucket           string
	region           string
	prefix           string
	cloudFrontDomain string
}

// NewUploader creates an uploader. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return newUploader(s3.NewFromConfig(sdkConfig), cfg), nil
}

func newUploader(client putter, cfg config.S3Config) *Uploader {
	return &Uploader{
		client:           client,
		bucket:           cfg.Bucket,
		region:           cfg.Region,
		prefix:           cfg.Prefix,
		cloudFrontDomain: cfg.CloudFrontDomain,
	}
}

// Upload stores body under key and returns its public URL
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	objectKey := path.Join(u.prefix, key)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to upload file to S3")
	}

	log.Info().Str("key", objectKey).Int("bytes", len(body)).Msg("File uploaded")
	return u.url(objectKey), nil
}

func (u *Uploader) url(objectKey string) string {
	if u.cloudFrontDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.cloudFrontDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, objectKey)
}
