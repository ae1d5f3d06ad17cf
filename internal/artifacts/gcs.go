package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket. GCS
// object creation is atomic on writer Close, so a key is either the
// old object or the fully written new one.
type GCSStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, log *logger.Logger, bucket string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("artifact bucket name is empty")
	}
	var opts []option.ClientOption
	if emulator := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); emulator != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	serviceLog := log.With("service", "GCSStore")
	serviceLog.Info("Artifact bucket initialized", "bucket", bucket)
	return &GCSStore{log: serviceLog, client: client, bucket: bucket}, nil
}

func (s *GCSStore) Write(ctx context.Context, key string, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return mlerr.NewArtifactError("write", key, err)
	}
	if err := w.Close(); err != nil {
		return mlerr.NewArtifactError("write", key, err)
	}
	return nil
}

func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(rctx)
	if err != nil {
		return nil, mlerr.NewArtifactError("read", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, mlerr.NewArtifactError("read", key, err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(sctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, mlerr.NewArtifactError("stat", key, err)
	}
	return true, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
