package store

import (
	"context"
	"fmt"

	awss3 "github.com/marksidell/dynips/internal/aws/s3"
)

// S3Objects is the ObjectStore backed by one S3 bucket.
type S3Objects struct {
	client *awss3.Client
	bucket string
}

func NewS3Objects(client *awss3.Client, bucket string) *S3Objects {
	return &S3Objects{client: client, bucket: bucket}
}

func (s *S3Objects) List(ctx context.Context) ([]Object, error) {
	listed, err := s.client.ListAllObjects(ctx, s.bucket, "")
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(listed))
	for _, o := range listed {
		objects = append(objects, Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
	}
	return objects, nil
}

func (s *S3Objects) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		if awss3.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Objects) Put(ctx context.Context, key string, body []byte) error {
	return s.client.PutObject(ctx, s.bucket, key, body)
}

func (s *S3Objects) Delete(ctx context.Context, key string) error {
	return s.client.DeleteObject(ctx, s.bucket, key)
}
