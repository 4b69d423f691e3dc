// Package gcsstore implements a Google Cloud Storage backend.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/cachesim/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store reads traces from a Google Cloud Storage bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string

	// open returns a reader for an object key; tests replace it.
	open func(ctx context.Context, key string) (io.ReadCloser, error)
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// New creates a new GCS store. The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	bucket := client.Bucket(bucketName)
	s := &Store{
		client: client,
		bucket: bucketName,
		open: func(ctx context.Context, key string) (io.ReadCloser, error) {
			return bucket.Object(key).NewReader(ctx)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ReadTrace reads and decompresses the named trace.
func (s *Store) ReadTrace(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.key(name)
	reader, err := s.open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", store.ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	defer reader.Close()

	return store.Decompress(name, reader)
}

// Close releases resources.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// key returns the full object key for a trace.
func (s *Store) key(name string) string {
	return s.prefix + strings.TrimPrefix(name, "/")
}
