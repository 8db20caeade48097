package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestPutIsContentAddressed(t *testing.T) {
	client := newFakeS3()
	a := New(client, "docs", "attachments")

	key, err := a.Put(context.Background(), []byte("%PDF-1.7 listing"), "application/pdf")
	require.NoError(t, err)
	again, err := a.Put(context.Background(), []byte("%PDF-1.7 listing"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, key, again)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "attachments", parts[0])
	assert.Len(t, parts[2], 64)
	assert.Equal(t, parts[2][:2], parts[1])
	assert.Len(t, client.objects, 1)
	assert.Equal(t, "application/pdf", client.types["docs/"+key])
}

func TestDifferentBytesGetDifferentKeys(t *testing.T) {
	a := New(newFakeS3(), "docs", "attachments")
	assert.NotEqual(t, a.Key([]byte("a")), a.Key([]byte("b")))
}

func TestPing(t *testing.T) {
	client := newFakeS3()
	a := New(client, "docs", "")
	assert.NoError(t, a.Ping(context.Background()))

	client.headErr = errors.New("403 forbidden")
	assert.ErrorContains(t, a.Ping(context.Background()), "head bucket docs")
}

func TestDisabledArchiveIsNil(t *testing.T) {
	a, err := NewFromConfig(context.Background(), config.ArchiveConfig{Bucket: "docs"})
	require.NoError(t, err)
	assert.Nil(t, a)
}
