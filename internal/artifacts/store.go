// Package artifacts persists versioned model bundles. Every version is
// a {model, scaler, metadata} triple plus "latest" aliases per lineage.
package artifacts

import (
	"context"
	"fmt"
	"path"

	types "github.com/yungbote/benchwatch-backend/internal/domain"
)

const (
	KindModel    = "model"
	KindScaler   = "scaler"
	KindMetadata = "metadata"
)

// Store is the persistence boundary for artifact bytes. Write must be
// atomic: a reader never observes a partially written object under a
// published key.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// VersionKey is the immutable object key for one artifact of one
// version.
func VersionKey(key types.LineageKey, version int, kind string) string {
	return path.Join(key.PumpSeries, key.TestType, key.FileType,
		fmt.Sprintf("%s_v%04d.json", kind, version))
}

// LatestKey is the mutable alias that always points at the newest
// version's artifact.
func LatestKey(key types.LineageKey, kind string) string {
	return path.Join(key.PumpSeries, key.TestType, key.FileType,
		fmt.Sprintf("%s_latest.json", kind))
}
