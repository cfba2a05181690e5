package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"sync"
)

// Object is one upload request.
type Object struct {
	// Bucket is the target bucket.
	Bucket string
	// Key is the object key inside the bucket.
	Key string
	// Body is the object content; it is read from the start.
	Body io.ReadSeeker
	// ContentType is stored with the object when set.
	ContentType string
	// Metadata is stored as user metadata.
	Metadata map[string]string
}

// Uploader stores objects and reports the version the backend assigned.
type Uploader interface {
	Put(ctx context.Context, obj Object) (versionID string, err error)
}

var (
	// ErrInvalidObject is returned for uploads without a bucket, key or body.
	ErrInvalidObject = errors.New("invalid object")
	// ErrNoVersion is returned when the bucket does not assign object versions.
	ErrNoVersion = errors.New("storage returned no object version; is bucket versioning enabled?")
)

// validate rejects incomplete upload requests.
func (o Object) validate() error {
	switch {
	case o.Bucket == "":
		return fmt.Errorf("bucket is empty: %w", ErrInvalidObject)
	case o.Key == "":
		return fmt.Errorf("key is empty: %w", ErrInvalidObject)
	case o.Body == nil:
		return fmt.Errorf("body is empty: %w", ErrInvalidObject)
	}

	return nil
}

// StoredObject is an object kept by MemoryUploader.
type StoredObject struct {
	Body        []byte
	ContentType string
	Metadata    map[string]string
	VersionID   string
}

// MemoryUploader keeps uploads in memory and numbers versions per key.
type MemoryUploader struct {
	// Err, when set, is returned by every Put.
	Err error

	mu       sync.Mutex
	objects  map[string]StoredObject
	versions map[string]int
	order    []string
}

// NewMemoryUploader creates an empty in-memory store.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		objects:  make(map[string]StoredObject),
		versions: make(map[string]int),
	}
}

// Put stores obj and returns a version ID of the form "<n>" counting uploads to the key.
func (m *MemoryUploader) Put(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := obj.validate(); err != nil {
		return "", err
	}

	if m.Err != nil {
		return "", m.Err
	}

	if _, err := obj.Body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind body: %w", err)
	}

	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := obj.Bucket + "/" + obj.Key
	m.versions[id]++
	version := strconv.Itoa(m.versions[id])

	m.objects[id] = StoredObject{
		Body:        body,
		ContentType: obj.ContentType,
		Metadata:    maps.Clone(obj.Metadata),
		VersionID:   version,
	}
	m.order = append(m.order, id)

	return version, nil
}

// Get returns the latest object stored at bucket/key.
func (m *MemoryUploader) Get(bucket, key string) (StoredObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[bucket+"/"+key]

	return obj, ok
}

// Uploads returns "bucket/key" for every successful Put in call order.
func (m *MemoryUploader) Uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.order...)
}
