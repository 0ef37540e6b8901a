package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type mockS3API struct {
	listObjectsV2Func func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	getObjectFunc     func(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	putObjectFunc     func(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	deleteObjectFunc  func(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

func (m *mockS3API) ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	return m.listObjectsV2Func(ctx, params, optFns...)
}

func (m *mockS3API) GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	return m.getObjectFunc(ctx, params, optFns...)
}

func (m *mockS3API) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	return m.putObjectFunc(ctx, params, optFns...)
}

func (m *mockS3API) DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	return m.deleteObjectFunc(ctx, params, optFns...)
}

func TestListObjects_BasicListing(t *testing.T) {
	lastMod := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock := &mockS3API{
		listObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
			if params.Delimiter != nil {
				t.Errorf("Delimiter = %q, want flat listing", awssdk.ToString(params.Delimiter))
			}
			return &awss3.ListObjectsV2Output{
				Contents: []s3types.Object{
					{
						Key:          awssdk.String("state/alice.heartbeat"),
						Size:         awssdk.Int64(17),
						LastModified: &lastMod,
					},
				},
				IsTruncated: awssdk.Bool(false),
			}, nil
		},
	}

	client := NewClient(mock)
	result, err := client.ListObjects(context.Background(), "my-bucket", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(result.Objects))
	}
	if result.Objects[0].Key != "state/alice.heartbeat" {
		t.Errorf("Objects[0].Key = %s, want state/alice.heartbeat", result.Objects[0].Key)
	}
	if !result.Objects[0].LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", result.Objects[0].LastModified, lastMod)
	}
	if result.Objects[0].Size != 17 {
		t.Errorf("Size = %d, want 17", result.Objects[0].Size)
	}
	if result.NextToken != "" {
		t.Errorf("NextToken = %s, want empty", result.NextToken)
	}
}

func TestListAllObjects_FollowsContinuation(t *testing.T) {
	callCount := 0
	mock := &mockS3API{
		listObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
			callCount++
			if callCount == 1 {
				if params.ContinuationToken != nil {
					t.Errorf("first call should not carry a token")
				}
				return &awss3.ListObjectsV2Output{
					Contents:              []s3types.Object{{Key: awssdk.String("a")}},
					IsTruncated:           awssdk.Bool(true),
					NextContinuationToken: awssdk.String("token-abc"),
				}, nil
			}
			if awssdk.ToString(params.ContinuationToken) != "token-abc" {
				t.Errorf("ContinuationToken = %s, want token-abc", awssdk.ToString(params.ContinuationToken))
			}
			return &awss3.ListObjectsV2Output{
				Contents:    []s3types.Object{{Key: awssdk.String("b")}},
				IsTruncated: awssdk.Bool(false),
			}, nil
		},
	}

	objects, err := NewClient(mock).ListAllObjects(context.Background(), "my-bucket", "state/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 API calls, got %d", callCount)
	}
	if len(objects) != 2 || objects[0].Key != "a" || objects[1].Key != "b" {
		t.Errorf("unexpected objects: %+v", objects)
	}
}

func TestListObjects_Error(t *testing.T) {
	mock := &mockS3API{
		listObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
			return nil, fmt.Errorf("no such bucket")
		},
	}

	_, err := NewClient(mock).ListObjects(context.Background(), "missing-bucket", "", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ListObjectsV2") {
		t.Errorf("error should wrap with ListObjectsV2 context, got: %v", err)
	}
}

func TestGetObject(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
			if awssdk.ToString(params.Bucket) != "my-bucket" {
				t.Errorf("Bucket = %s, want my-bucket", awssdk.ToString(params.Bucket))
			}
			if awssdk.ToString(params.Key) != "state/alice.heartbeat" {
				t.Errorf("Key = %s, want state/alice.heartbeat", awssdk.ToString(params.Key))
			}
			return &awss3.GetObjectOutput{
				Body: io.NopCloser(strings.NewReader(`{"ip": "1.2.3.4"}`)),
			}, nil
		},
	}

	data, err := NewClient(mock).GetObject(context.Background(), "my-bucket", "state/alice.heartbeat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ip": "1.2.3.4"}` {
		t.Errorf("data = %q", string(data))
	}
}

func TestGetObject_NotFound(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
		},
	}

	_, err := NewClient(mock).GetObject(context.Background(), "my-bucket", "users/nobody")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "GetObject") {
		t.Errorf("error should wrap with GetObject context, got: %v", err)
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
	if IsNotFound(fmt.Errorf("access denied")) {
		t.Error("plain errors must not be reported as not found")
	}
}

func TestPutObject(t *testing.T) {
	var gotKey, gotBody string
	mock := &mockS3API{
		putObjectFunc: func(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
			gotKey = awssdk.ToString(params.Key)
			b, _ := io.ReadAll(params.Body)
			gotBody = string(b)
			return &awss3.PutObjectOutput{}, nil
		},
	}

	err := NewClient(mock).PutObject(context.Background(), "my-bucket", "state/alice.hold", []byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "state/alice.hold" || gotBody != "{}" {
		t.Errorf("put %q = %q", gotKey, gotBody)
	}
}

func TestDeleteObject_Error(t *testing.T) {
	mock := &mockS3API{
		deleteObjectFunc: func(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
			return nil, fmt.Errorf("access denied")
		},
	}

	err := NewClient(mock).DeleteObject(context.Background(), "my-bucket", "state/alice.heartbeat")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "DeleteObject") {
		t.Errorf("error should wrap with DeleteObject context, got: %v", err)
	}
}
