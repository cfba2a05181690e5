package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/require"
)

var errTestPut = errors.New("access denied")

// fakeS3 records PutObject calls and returns a scripted response.
type fakeS3 struct {
	// inputs are the requests received so far.
	inputs []*s3.PutObjectInput
	// bodies are the uploaded contents in call order.
	bodies [][]byte
	// versionID is returned in every response when non-empty.
	versionID string
	// err is returned instead of a response when set.
	err error
}

// PutObjectWithContext implements putObjectAPI.
func (f *fakeS3) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, input)

	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	f.bodies = append(f.bodies, body)

	if f.err != nil {
		return nil, f.err
	}

	out := new(s3.PutObjectOutput)
	if f.versionID != "" {
		out.VersionId = aws.String(f.versionID)
	}

	return out, nil
}

// TestS3Uploader_Put maps the object onto a PutObject request and returns the version.
func TestS3Uploader_Put(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{versionID: "abc123"}
	uploader := &S3Uploader{client: fake}

	body := bytes.NewReader([]byte("zip-bytes"))
	_, _ = body.Seek(4, io.SeekStart)

	version, err := uploader.Put(context.Background(), Object{
		Bucket:      "my-bucket",
		Key:         "v1/pkg.zip",
		Body:        body,
		ContentType: "application/zip",
		Metadata:    map[string]string{"build-id": "b-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "abc123", version)

	require.Len(t, fake.inputs, 1)
	require.Equal(t, "my-bucket", aws.StringValue(fake.inputs[0].Bucket))
	require.Equal(t, "v1/pkg.zip", aws.StringValue(fake.inputs[0].Key))
	require.Equal(t, "application/zip", aws.StringValue(fake.inputs[0].ContentType))
	require.Equal(t, "b-1", aws.StringValue(fake.inputs[0].Metadata["build-id"]))
	// The body is rewound before uploading.
	require.Equal(t, "zip-bytes", string(fake.bodies[0]))
}

// TestS3Uploader_Errors covers validation, backend failures and unversioned buckets.
func TestS3Uploader_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	obj := Object{Bucket: "b", Key: "k", Body: bytes.NewReader(nil)}

	_, err := (&S3Uploader{client: &fakeS3{}}).Put(ctx, Object{Key: "k", Body: bytes.NewReader(nil)})
	require.ErrorIs(t, err, ErrInvalidObject)

	_, err = (&S3Uploader{client: &fakeS3{err: errTestPut}}).Put(ctx, obj)
	require.ErrorIs(t, err, errTestPut)

	_, err = (&S3Uploader{client: &fakeS3{}}).Put(ctx, obj)
	require.ErrorIs(t, err, ErrNoVersion)
}

// TestMemoryUploader versions uploads per key and keeps call order.
func TestMemoryUploader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryUploader()

	v1, err := m.Put(ctx, Object{Bucket: "b", Key: "k", Body: bytes.NewReader([]byte("one"))})
	require.NoError(t, err)
	require.Equal(t, "1", v1)

	v2, err := m.Put(ctx, Object{Bucket: "b", Key: "k", Body: bytes.NewReader([]byte("two"))})
	require.NoError(t, err)
	require.Equal(t, "2", v2)

	_, err = m.Put(ctx, Object{Bucket: "b", Key: "other", Body: bytes.NewReader([]byte("x")), ContentType: "text/plain"})
	require.NoError(t, err)

	got, ok := m.Get("b", "k")
	require.True(t, ok)
	require.Equal(t, "two", string(got.Body))
	require.Equal(t, "2", got.VersionID)

	require.Equal(t, []string{"b/k", "b/k", "b/other"}, m.Uploads())

	_, ok = m.Get("b", "missing")
	require.False(t, ok)

	m.Err = errTestPut
	_, err = m.Put(ctx, Object{Bucket: "b", Key: "k", Body: bytes.NewReader(nil)})
	require.ErrorIs(t, err, errTestPut)

	_, err = m.Put(ctx, Object{Bucket: "b", Body: bytes.NewReader(nil)})
	require.ErrorIs(t, err, ErrInvalidObject)
}
