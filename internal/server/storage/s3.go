package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Seams for testing the AWS SDK wiring without a live endpoint.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	copyObject = func(c *s3.Client, ctx context.Context, in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
		return c.CopyObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// S3Options configures the S3-backed gateway.
type S3Options struct {
	User          string
	Password      string
	Bucket        string
	Region        string
	BaseEndpoint  string
	PresignExpiry time.Duration
}

// S3Gateway implements Gateway over an S3-compatible backend (MinIO in dev).
// One client is built at startup and shared; this path sits on every upload,
// so per-call client construction would be wasteful.
type S3Gateway struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
}

// NewS3Gateway builds the shared S3 client from explicit options.
func NewS3Gateway(ctx context.Context, opts S3Options) (*S3Gateway, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User,
			opts.Password,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Gateway{
		client:        client,
		presignClient: newS3PresignClient(client),
		bucket:        opts.Bucket,
		presignExpiry: opts.PresignExpiry,
	}, nil
}

func (g *S3Gateway) SignPut(ctx context.Context, key string) (string, error) {
	req, err := presignPutObject(g.presignClient, ctx, &s3.PutObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(g.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign put error: %w", err)
	}
	return req.URL, nil
}

func (g *S3Gateway) SignGet(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(g.presignClient, ctx, &s3.GetObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(g.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get error: %w", err)
	}
	return req.URL, nil
}

func (g *S3Gateway) Copy(ctx context.Context, srcKey, dstKey string) error {
	source := g.bucket + "/" + srcKey
	_, err := copyObject(g.client, ctx, &s3.CopyObjectInput{
		Bucket:     &g.bucket,
		CopySource: &source,
		Key:        &dstKey,
	})
	if err != nil {
		return fmt.Errorf("copy object error: %w", err)
	}
	return nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	_, err := deleteObject(g.client, ctx, &s3.DeleteObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("delete object error: %w", err)
	}
	return nil
}
