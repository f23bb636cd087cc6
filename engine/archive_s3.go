package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Archiver pushes an archived ticket's bytes to an S3-compatible bucket
// alongside the local artifact Archive always records. Optional: only
// constructed when config names a bucket (SPEC_FULL.md §B "Artifact
// off-box archive"); archive's local-disk behavior is unchanged when it is
// nil.
type s3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// newS3Archiver loads the default AWS config and returns nil, nil when
// bucket is empty — archive stays local-disk-only, the common case.
func newS3Archiver(ctx context.Context, bucket, prefix string) (*s3Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: load aws config: %w", err)
	}
	return &s3Archiver{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (a *s3Archiver) upload(ctx context.Context, repoID, runID, key string, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("engine: read %s for s3 archive: %w", path, err)
	}
	objectKey := fmt.Sprintf("%s%s/%s/%s", a.prefix, repoID, runID, key)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("engine: upload %s to s3: %w", objectKey, err)
	}
	return objectKey, nil
}
