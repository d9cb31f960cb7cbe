package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	pages   [][]types.Object
	getErr  error
	headErr error
	puts    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Key)] = data
	f.puts = append(f.puts, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = len(aws.ToString(in.ContinuationToken))
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strings.Repeat("x", page+1))
	}
	return out, nil
}

type fakeUploader struct {
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.keys = append(u.keys, aws.ToString(in.Key))
	return &manager.UploadOutput{}, nil
}

func TestS3Service_ReadWrite(t *testing.T) {
	fake := &fakeS3{}
	svc := &S3Service{client: fake, bucket: "bench"}
	ctx := context.Background()

	_, err := svc.Read(ctx, "json-db/users.json")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, svc.Write(ctx, "json-db/users.json", []byte(`{"users":{}}`)))
	data, err := svc.Read(ctx, "json-db/users.json")
	require.NoError(t, err)
	assert.Equal(t, `{"users":{}}`, string(data))
}

func TestS3Service_ReadOtherErrorsAreWrapped(t *testing.T) {
	boom := errors.New("access denied")
	svc := &S3Service{client: &fakeS3{getErr: boom}, bucket: "bench"}

	_, err := svc.Read(context.Background(), "json-db/users.json")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotExist)
}

func TestS3Service_ListObjectsFollowsPages(t *testing.T) {
	fake := &fakeS3{pages: [][]types.Object{
		{{Key: aws.String("documents/a.pdf"), Size: aws.Int64(1)}, {Key: aws.String("documents/")}},
		{{Key: aws.String("documents/b.pdf"), Size: aws.Int64(2)}},
	}}
	svc := &S3Service{client: fake, bucket: "bench"}

	objects, err := svc.ListObjects(context.Background(), "documents/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a.pdf", objects[0].Name())
	assert.Equal(t, "b.pdf", objects[1].Name())
}

func TestS3Service_ExistsAndUpload(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"documents/a.pdf": []byte("x")}}
	up := &fakeUploader{}
	svc := &S3Service{client: fake, uploader: up, bucket: "bench"}
	ctx := context.Background()

	ok, err := svc.Exists(ctx, "documents/a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "documents/b.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Upload(ctx, "documents/b.pdf", strings.NewReader("y")))
	assert.Equal(t, []string{"documents/b.pdf"}, up.keys)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}
