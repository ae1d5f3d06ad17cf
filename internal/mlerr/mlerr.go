// Package mlerr defines the error taxonomy shared by the training and
// detection pipelines.
package mlerr

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema means a raw file yielded zero usable numeric columns.
	ErrSchema = errors.New("no numeric columns after schema reconciliation")

	// ErrRegistryConflict means concurrent writers raced on a lineage's
	// version counter. Publish is retried with backoff before this
	// surfaces to the caller.
	ErrRegistryConflict = errors.New("model registry version conflict")

	// ErrModelNotFound means no trained version exists for the lineage.
	ErrModelNotFound = errors.New("no trained model for lineage")
)

// DimensionError reports a feature-count mismatch against a model's
// input dimension. During detection it is fatal for that model and must
// not be retried; retraining is the remedy.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("data has %d columns but model expects %d", e.Got, e.Want)
}

// ArtifactError wraps a failed read or write of a persisted model,
// scaler, or metadata file.
type ArtifactError struct {
	Op   string
	Key  string
	Err  error
	Hint string
}

func (e *ArtifactError) Error() string {
	msg := fmt.Sprintf("artifact %s %q: %v", e.Op, e.Key, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// NewArtifactError attaches the standard remediation hint for corrupt or
// missing artifacts.
func NewArtifactError(op, key string, err error) *ArtifactError {
	return &ArtifactError{Op: op, Key: key, Err: err, Hint: "retrain model"}
}
