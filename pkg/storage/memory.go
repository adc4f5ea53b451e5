package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory ObjectStorage used by tests. It mirrors the
// S3 implementation's idempotence behavior, including crash-recovery on
// completion and abort.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte          // bucket/object -> content
	uploads map[string]*memoryUpload   // upload id -> upload
	nextID  int
}

type memoryUpload struct {
	bucket string
	object string
	parts  map[int32][]byte
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		uploads: make(map[string]*memoryUpload),
	}
}

func objectKey(bucket, object string) string {
	return bucket + "/" + object
}

// PutObject seeds an object directly, bypassing the multipart flow.
func (m *MemoryStorage) PutObject(bucket, object string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(bucket, object)] = append([]byte(nil), content...)
}

// DropUpload forgets an in-progress upload without aborting it, simulating
// backend-side expiry.
func (m *MemoryStorage) DropUpload(uploadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
}

func (m *MemoryStorage) InitMultipartUpload(_ context.Context, bucket, object string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range m.uploads {
		if u.bucket == bucket && u.object == object {
			return "", fmt.Errorf("%w: %s/%s (upload id %s)", ErrMultipartInProgress, bucket, object, id)
		}
	}

	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &memoryUpload{
		bucket: bucket,
		object: object,
		parts:  make(map[int32][]byte),
	}
	return id, nil
}

func (m *MemoryStorage) PartUploadURL(_ context.Context, uploadID, bucket, object string, partNumber int32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.uploads[uploadID]; !ok {
		return "", fmt.Errorf("%w: %s for %s/%s", ErrUploadNotFound, uploadID, bucket, object)
	}
	return fmt.Sprintf("memory://%s/%s?uploadId=%s&partNumber=%d", bucket, object, uploadID, partNumber), nil
}

// UploadPart simulates a client PUT against a presigned part URL.
func (m *MemoryStorage) UploadPart(uploadID string, partNumber int32, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	u.parts[partNumber] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStorage) CompleteMultipartUpload(_ context.Context, uploadID, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[uploadID]
	if !ok {
		if _, exists := m.objects[objectKey(bucket, object)]; exists {
			return nil
		}
		return fmt.Errorf("%w: %s for %s/%s", ErrUploadNotFound, uploadID, bucket, object)
	}

	numbers := make([]int32, 0, len(u.parts))
	for n := range u.parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var content []byte
	for _, n := range numbers {
		content = append(content, u.parts[n]...)
	}

	m.objects[objectKey(bucket, object)] = content
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemoryStorage) AbortMultipartUpload(_ context.Context, uploadID, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.uploads, uploadID)
	return nil
}

func (m *MemoryStorage) GetObjectSize(_ context.Context, bucket, object string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.objects[objectKey(bucket, object)]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, object)
	}
	return int64(len(content)), nil
}

func (m *MemoryStorage) DoesObjectExist(_ context.Context, bucket, object string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.objects[objectKey(bucket, object)]
	return ok, nil
}

func (m *MemoryStorage) CopyObject(_ context.Context, srcBucket, srcObject, dstBucket, dstObject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[objectKey(dstBucket, dstObject)]; exists {
		return nil
	}

	content, ok := m.objects[objectKey(srcBucket, srcObject)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, srcBucket, srcObject)
	}

	m.objects[objectKey(dstBucket, dstObject)] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStorage) DeleteObject(_ context.Context, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, objectKey(bucket, object))
	return nil
}

func (m *MemoryStorage) PresignedDownloadURL(_ context.Context, bucket, object string, expiresAfter time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[objectKey(bucket, object)]; !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, object)
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, object, int64(expiresAfter.Seconds())), nil
}

func (m *MemoryStorage) ListObjectIDs(_ context.Context, bucket string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := bucket + "/"
	var ids []string
	for key := range m.objects {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}
