package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

const defaultObject = "dados_tjrn.json"

// GCSStore keeps the dataset as one object in a bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSStore builds a store over an existing client. Close closes the client.
func NewGCSStore(client *storage.Client, cfg GCSConfig) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	object := cfg.Object
	if object == "" {
		object = defaultObject
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, object: object}, nil
}

// URI is the gs:// location of the dataset.
func (s *GCSStore) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Save overwrites the object.
func (s *GCSStore) Save(ctx context.Context, d dataset.Dataset) error {
	data, err := dataset.Marshal(d)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json; charset=utf-8"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Load downloads the object. A missing object is ErrNoDataset.
func (s *GCSStore) Load(ctx context.Context) (dataset.Dataset, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", s.URI(), err)
	}
	defer func() { _ = reader.Close() }()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.URI(), err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNoDataset
	}
	return dataset.Decode(bytes.NewReader(raw))
}

// Close closes the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
