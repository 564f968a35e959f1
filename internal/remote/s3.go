package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

// S3API is the subset of the S3 client used by S3Index
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Index implements Index on an S3 bucket with content-addressed keys
type S3Index struct {
	client S3API
	bucket string
}

// NewS3Index creates an index over bucket
func NewS3Index(client S3API, bucket string) *S3Index {
	return &S3Index{client: client, bucket: bucket}
}

// NewS3Client loads the default AWS configuration and builds a client.
// A non-empty endpoint targets an S3-compatible service with path-style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if region != "" {
		cfg.Region = region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3Opts...), nil
}

func (i *S3Index) Exists(ctx context.Context, hash string) (bool, error) {
	if !hasher.Valid(hash) {
		return false, fmt.Errorf("%w: bad content hash %q", ErrInvalidUpload, hash)
	}

	key := objectKey(hash)
	_, err := i.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(i.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, &OpError{Op: "head", Key: key, Err: err}
}

func (i *S3Index) Store(ctx context.Context, upload Upload) error {
	if err := upload.validate(); err != nil {
		return err
	}

	meta := upload.Metadata

	// The thumbnail goes first so an asset object never exists without it.
	if len(upload.Thumbnail) > 0 {
		key := thumbnailKey(meta.Hash)
		_, err := i.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(i.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(upload.Thumbnail),
			ContentType: aws.String("image/jpeg"),
			Metadata:    map[string]string{"hash": meta.Hash},
		})
		if err != nil {
			return &OpError{Op: "put", Key: key, Err: err}
		}
	}

	key := objectKey(meta.Hash)
	_, err := i.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(i.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(upload.Data),
		ContentType: aws.String(upload.ContentType),
		Metadata:    asciiAttributes(meta.attributes()),
	})
	if err != nil {
		return &OpError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// isNotFound recognizes the missing-object errors HeadObject returns
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
