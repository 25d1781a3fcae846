package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrNotFound = errors.New("report not found")

type Options struct {
	ServiceURL string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string

	// DisablePayloadSigning sends uploads as UNSIGNED-PAYLOAD, which some
	// S3 compatible stores require.
	DisablePayloadSigning bool
}

// Service archives analysis snapshots in an S3 compatible bucket.
type Service struct {
	client                *s3.Client
	bucketName            string
	disablePayloadSigning bool
}

func NewService(ctx context.Context, opts Options) (*Service, error) {
	if opts.Bucket == "" {
		opts.Bucket = "vitals-reports"
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.ServiceURL != "" {
			o.BaseEndpoint = aws.String(opts.ServiceURL)
		}
		o.UsePathStyle = true
	})

	return &Service{
		client:                client,
		bucketName:            opts.Bucket,
		disablePayloadSigning: opts.DisablePayloadSigning,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucketName)})
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	return err
}

func reportKey(id string) string {
	return fmt.Sprintf("reports/%s.json", id)
}

// SaveReport stores v as JSON under reports/{id}.json.
func (s *Service) SaveReport(ctx context.Context, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var optFns []func(*s3.Options)
	if s.disablePayloadSigning {
		optFns = append(optFns, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(reportKey(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}, optFns...)
	return err
}

// GetReport returns the stored document with its last modification time
// and ETag. The caller closes the reader.
func (s *Service) GetReport(ctx context.Context, id string) (io.ReadCloser, *time.Time, *string, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(reportKey(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil, nil, ErrNotFound
		}
		return nil, nil, nil, err
	}
	return resp.Body, resp.LastModified, resp.ETag, nil
}

func (s *Service) DeleteReport(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(reportKey(id)),
	})
	return err
}
