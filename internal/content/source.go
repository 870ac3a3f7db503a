package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxDeckBytes bounds a copy deck read or write.
const MaxDeckBytes = 1 << 20

// ErrReadOnly is returned by Save on sources that cannot be written.
var ErrReadOnly = errors.New("content: source is read-only")

// Source loads and stores the raw markdown.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, markdown []byte) error
	// Describe names the source for logs.
	Describe() string
}

// FileSource reads the deck from local disk.
type FileSource struct {
	Path     string
	ReadOnly bool
}

// Load reads the deck file, refusing files larger than MaxDeckBytes.
func (s FileSource) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read copy deck: %w", err)
	}
	if len(data) > MaxDeckBytes {
		return nil, fmt.Errorf("copy deck %s exceeds %d bytes", s.Path, MaxDeckBytes)
	}
	return data, nil
}

// Save writes through a temp file and rename so readers never see a partial
// deck. The file keeps its existing mode, or 0644 when it is new.
func (s FileSource) Save(_ context.Context, markdown []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.Path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".content-*.md")
	if err != nil {
		return fmt.Errorf("create temp copy deck: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(markdown); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp copy deck: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp copy deck: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp copy deck: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace copy deck: %w", err)
	}
	return nil
}

// Describe returns "file:" and the path.
func (s FileSource) Describe() string { return "file:" + s.Path }

// ObjectStore is the subset of pkg/storage.S3 used by S3Source.
type ObjectStore interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
	WriteObject(ctx context.Context, bucket, key, contentType string, body []byte) error
}

// S3Source keeps the deck in an object bucket.
type S3Source struct {
	Store  ObjectStore
	Bucket string
	Key    string
}

// Load fetches the deck object.
func (s S3Source) Load(ctx context.Context) ([]byte, error) {
	data, err := s.Store.ReadObject(ctx, s.Bucket, s.Key)
	if err != nil {
		return nil, fmt.Errorf("read copy deck s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	return data, nil
}

// Save uploads the deck as text/markdown.
func (s S3Source) Save(ctx context.Context, markdown []byte) error {
	if err := s.Store.WriteObject(ctx, s.Bucket, s.Key, "text/markdown; charset=utf-8", markdown); err != nil {
		return fmt.Errorf("write copy deck s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	return nil
}

// Describe returns the s3:// URL of the deck.
func (s S3Source) Describe() string { return "s3://" + s.Bucket + "/" + s.Key }
