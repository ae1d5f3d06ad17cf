package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yungbote/benchwatch-backend/internal/mlerr"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

// LocalStore keeps artifacts on the local filesystem under a root
// directory. Writes land in a temp file first and are renamed into
// place, so a published key is either absent or complete.
type LocalStore struct {
	log  *logger.Logger
	root string
}

func NewLocalStore(log *logger.Logger, root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	return &LocalStore{log: log.With("service", "LocalStore"), root: root}, nil
}

func (s *LocalStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.pathFor(key)
	if err != nil {
		return mlerr.NewArtifactError("write", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return mlerr.NewArtifactError("write", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return mlerr.NewArtifactError("write", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return mlerr.NewArtifactError("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return mlerr.NewArtifactError("write", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return mlerr.NewArtifactError("write", key, err)
	}
	return nil
}

func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := s.pathFor(key)
	if err != nil {
		return nil, mlerr.NewArtifactError("read", key, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, mlerr.NewArtifactError("read", key, err)
	}
	return data, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	src, err := s.pathFor(key)
	if err != nil {
		return false, mlerr.NewArtifactError("stat", key, err)
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, mlerr.NewArtifactError("stat", key, err)
	}
	return true, nil
}
