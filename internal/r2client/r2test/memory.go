// Package r2test provides an in-memory S3 API for tests of R2 consumers.
package r2test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type object struct {
	data []byte
	etag string
}

// MemoryAPI implements r2client.API in memory, honoring If-None-Match and
// If-Match on PutObject.
type MemoryAPI struct {
	mu      sync.Mutex
	objects map[string]object
	seq     int

	// FailPuts makes every PutObject return this error when set.
	FailPuts error
}

// NewMemoryAPI returns an empty bucket.
func NewMemoryAPI() *MemoryAPI {
	return &MemoryAPI{objects: make(map[string]object)}
}

func precondition() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (m *MemoryAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts != nil {
		return nil, m.FailPuts
	}

	key := aws.ToString(in.Key)
	cur, exists := m.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, precondition()
	}
	if in.IfMatch != nil && (!exists || aws.ToString(in.IfMatch) != `"`+cur.etag+`"`) {
		return nil, precondition()
	}

	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}
	m.seq++
	tag := fmt.Sprintf("etag-%d", m.seq)
	m.objects[key] = object{data: data, etag: tag}
	return &s3.PutObjectOutput{ETag: aws.String(`"` + tag + `"`)}, nil
}

func (m *MemoryAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(obj.data)),
		ETag: aws.String(`"` + obj.etag + `"`),
	}, nil
}

func (m *MemoryAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(`"` + obj.etag + `"`)}, nil
}

func (m *MemoryAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// Object returns the stored bytes for key.
func (m *MemoryAPI) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Put stores data under key unconditionally.
func (m *MemoryAPI) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.objects[key] = object{data: data, etag: fmt.Sprintf("etag-%d", m.seq)}
}
