// Package s3 adapts an S3-compatible object store to ports.ObjectStorePort
// (spec §6.4, S3_ENDPOINT_URL / bucket / credentials).
package s3

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/resilience"
)

// client is the subset of *s3.Client the Store needs, so tests can
// substitute a stub.
type client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store is a ports.ObjectStorePort backed by an S3-compatible bucket.
type Store struct {
	client  client
	bucket  string
	breaker *resilience.Breaker
}

// Config describes how to reach the bucket, including the
// S3_ENDPOINT_URL override needed for S3-compatible stores (MinIO,
// LocalStack) that aren't AWS itself.
type Config struct {
	EndpointURL     string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// New builds a Store from cfg, resolving AWS SDK credentials and the
// optional custom endpoint.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Store{client: s3Client, bucket: cfg.Bucket, breaker: resilience.NewBreaker("s3-object-store")}, nil
}

// NewForTest builds a Store against any client implementation, for
// substituting a stub in place of a real S3 client.
func NewForTest(c client, bucket string) *Store {
	return &Store{client: c, bucket: bucket, breaker: resilience.NewBreaker("s3-object-store")}
}

// PutObject implements ports.ObjectStorePort.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          r,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// GetObjectStream implements ports.ObjectStorePort.
func (s *Store) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, apperrors.NewNotFoundError("document binary")
		}
		return nil, classify(err)
	}
	return result.(*s3.GetObjectOutput).Body, nil
}

// DeleteObject implements ports.ObjectStorePort.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "object store call failed")
}
