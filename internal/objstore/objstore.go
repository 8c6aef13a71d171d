// Package objstore moves small blobs between the local filesystem and Google
// Cloud Storage, addressed uniformly: gs://bucket/object or a plain path.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// ErrNoGCSClient is returned for gs:// URIs on a Store built with NewLocal.
var ErrNoGCSClient = errors.New("objstore: no GCS client configured")

// Store reads and writes blobs. A nil inner client restricts it to local paths.
type Store struct {
	gcs *storage.Client
}

// New returns a Store backed by a GCS client for gs:// URIs. Options are
// passed through, which lets tests point at an emulator endpoint.
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{gcs: client}, nil
}

// NewLocal returns a Store that only handles local paths.
func NewLocal() *Store { return &Store{} }

func (s *Store) Close() error {
	if s.gcs == nil {
		return nil
	}
	return s.gcs.Close()
}

// Put writes data to uri, creating parent directories for local paths.
func (s *Store) Put(ctx context.Context, uri string, data []byte) error {
	if IsGCS(uri) {
		return s.putGCS(ctx, uri, data)
	}
	if dir := filepath.Dir(uri); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(uri, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", uri, err)
	}
	log.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("wrote local object")
	return nil
}

// Get reads the blob at uri.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	if IsGCS(uri) {
		return s.getGCS(ctx, uri)
	}
	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

func (s *Store) putGCS(ctx context.Context, uri string, data []byte) error {
	if s.gcs == nil {
		return fmt.Errorf("%w: %s", ErrNoGCSClient, uri)
	}
	bucket, object, err := SplitURI(uri)
	if err != nil {
		return err
	}
	w := s.gcs.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", uri, err)
	}
	log.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("wrote object")
	return nil
}

func (s *Store) getGCS(ctx context.Context, uri string) ([]byte, error) {
	if s.gcs == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGCSClient, uri)
	}
	bucket, object, err := SplitURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

// Read is a one-shot Get that builds a GCS client on demand for gs:// URIs.
// Task workers use it to fetch their argument file without holding a Store.
func Read(ctx context.Context, uri string) ([]byte, error) {
	if !IsGCS(uri) {
		return NewLocal().Get(ctx, uri)
	}
	s, err := New(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Get(ctx, uri)
}

// IsGCS reports whether uri names a GCS object.
func IsGCS(uri string) bool { return strings.HasPrefix(uri, gcsScheme) }

// SplitURI splits gs://bucket/object into its parts.
func SplitURI(uri string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(uri, gcsScheme)
	if rest == uri {
		return "", "", fmt.Errorf("not a gs:// URI: %s", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid gs:// URI %q: need bucket and object", uri)
	}
	return bucket, object, nil
}

// Join appends path elements to dir, keeping the gs:// scheme intact.
func Join(dir string, elem ...string) string {
	if IsGCS(dir) {
		rest := strings.TrimPrefix(dir, gcsScheme)
		return gcsScheme + path.Join(append([]string{rest}, elem...)...)
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}
