// Package objectstore provides a NATS JetStream implementation of core.ObjectStore.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore keeps book texts and audiobooks in a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  jetstream.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(ctx context.Context, js jetstream.JetStream, bucketName string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Narrator storage for the %s bucket.", bucketName),
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = js.ObjectStore(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download retrieves an object. A missing key matches jetstream.ErrObjectNotFound.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return data, nil
}

// Upload saves data under key.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.PutBytes(ctx, key, data)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// UploadFile streams the file at path into the bucket under key.
func (n *NatsObjectStore) UploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to open '%s' for upload: %w", path, err)
	}
	defer file.Close()

	_, err = n.store.Put(ctx, jetstream.ObjectMeta{
		Name:        key,
		Description: filepath.Base(path),
	}, file)
	if err != nil {
		return fmt.Errorf("failed to put file '%s' as '%s' to bucket '%s': %w", path, key, n.bucket, err)
	}

	return nil
}
