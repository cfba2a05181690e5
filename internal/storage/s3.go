package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/version"
)

// putObjectAPI is the subset of the S3 client S3Uploader uses.
type putObjectAPI interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads objects to Amazon S3.
type S3Uploader struct {
	// client performs the PutObject calls.
	client putObjectAPI
}

// NewS3Uploader creates an uploader using the default credential chain and shared config.
// An empty region defers to AWS_REGION and the shared config files.
func NewS3Uploader(region string) (*S3Uploader, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	sess.Handlers.Build.PushBack(request.MakeAddToUserAgentHandler(version.Name, version.Short()))

	return &S3Uploader{client: s3.New(sess)}, nil
}

// Put uploads obj and returns the version ID S3 assigned.
func (u *S3Uploader) Put(ctx context.Context, obj Object) (string, error) {
	if err := obj.validate(); err != nil {
		return "", err
	}

	if _, err := obj.Body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind body: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
		Body:   obj.Body,
	}

	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}

	if len(obj.Metadata) > 0 {
		input.Metadata = aws.StringMap(obj.Metadata)
	}

	logger.InfoKV(ctx, "Uploading object", "bucket", obj.Bucket, "key", obj.Key)

	out, err := u.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", obj.Bucket, obj.Key, err)
	}

	versionID := aws.StringValue(out.VersionId)
	if versionID == "" {
		return "", fmt.Errorf("put s3://%s/%s: %w", obj.Bucket, obj.Key, ErrNoVersion)
	}

	logger.InfoKV(ctx, "Uploaded object", "bucket", obj.Bucket, "key", obj.Key, "version_id", versionID)

	return versionID, nil
}
