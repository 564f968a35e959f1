package remote

import (
	"context"
	"errors"
	"io"
	"mime"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client implements S3API with overridable functions
type mockS3Client struct {
	HeadObjectFunc func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObjectFunc  func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.HeadObjectFunc(ctx, params, optFns...)
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

func TestS3Index_Exists(t *testing.T) {
	tests := []struct {
		name    string
		headErr error
		want    bool
		wantErr bool
	}{
		{name: "present", want: true},
		{name: "typed not found", headErr: &types.NotFound{}, want: false},
		{name: "no such key", headErr: &types.NoSuchKey{}, want: false},
		{name: "generic api not found", headErr: &smithy.GenericAPIError{Code: "NotFound"}, want: false},
		{name: "access denied", headErr: &smithy.GenericAPIError{Code: "AccessDenied"}, wantErr: true},
		{name: "network", headErr: errors.New("dial tcp: connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3Client{
				HeadObjectFunc: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					assert.Equal(t, "media", aws.ToString(params.Bucket))
					assert.Equal(t, "assets/"+testHash, aws.ToString(params.Key))
					if tt.headErr != nil {
						return nil, tt.headErr
					}
					return &s3.HeadObjectOutput{}, nil
				},
			}

			got, err := NewS3Index(mock, "media").Exists(context.Background(), testHash)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrRemote)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestS3Index_Store(t *testing.T) {
	var keys []string
	bodies := map[string]string{}
	var assetMeta map[string]string

	mock := &mockS3Client{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			key := aws.ToString(params.Key)
			keys = append(keys, key)
			body, err := io.ReadAll(params.Body)
			require.NoError(t, err)
			bodies[key] = string(body)
			if key == objectKey(testHash) {
				assetMeta = params.Metadata
				assert.Equal(t, "image/jpeg", aws.ToString(params.ContentType))
			}
			return &s3.PutObjectOutput{ETag: aws.String("etag")}, nil
		},
	}

	require.NoError(t, NewS3Index(mock, "media").Store(context.Background(), testUpload()))

	assert.Equal(t, []string{thumbnailKey(testHash), objectKey(testHash)}, keys)
	assert.Equal(t, "jpeg bytes", bodies[objectKey(testHash)])
	assert.Equal(t, "thumb", bodies[thumbnailKey(testHash)])
	assert.Equal(t, testHash, assetMeta["hash"])
	assert.Equal(t, "Brisbane, Australia", assetMeta["location"])
}

func TestS3Index_StoreEncodesNonASCIIMetadata(t *testing.T) {
	var assetMeta map[string]string
	mock := &mockS3Client{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			if aws.ToString(params.Key) == objectKey(testHash) {
				assetMeta = params.Metadata
			}
			return &s3.PutObjectOutput{}, nil
		},
	}

	upload := testUpload()
	upload.Metadata.Name = "Zürich.jpg"
	upload.Metadata.Location = "Bahnhofstrasse, Zürich, Schweiz"
	upload.Metadata.Properties = map[string]string{"Artist": "José"}
	require.NoError(t, NewS3Index(mock, "media").Store(context.Background(), upload))

	dec := new(mime.WordDecoder)
	for key, want := range map[string]string{
		"file-name":   "Zürich.jpg",
		"location":    "Bahnhofstrasse, Zürich, Schweiz",
		"prop-Artist": "José",
	} {
		got := assetMeta[key]
		for _, r := range got {
			require.True(t, r >= ' ' && r <= '~', "%s=%q is not printable ASCII", key, got)
		}
		decoded, err := dec.DecodeHeader(got)
		require.NoError(t, err)
		assert.Equal(t, want, decoded, key)
	}
	assert.Equal(t, testHash, assetMeta["hash"], "ASCII values are unchanged")
}

func TestS3Index_StoreFailureSkipsAssetObject(t *testing.T) {
	calls := 0
	mock := &mockS3Client{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			calls++
			return nil, errors.New("throttled")
		},
	}

	err := NewS3Index(mock, "media").Store(context.Background(), testUpload())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, thumbnailKey(testHash), opErr.Key)
	assert.Equal(t, 1, calls)
}
