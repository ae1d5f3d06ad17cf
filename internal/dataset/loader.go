package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader turns one raw file format into a feature matrix. The only
// contract the core depends on is determinism: loading the same logical
// file twice must yield the same column identity and values.
type Loader interface {
	Load(path string) (*Matrix, error)
}

// Registry maps file extensions to loaders. Formats the deployment
// cannot parse simply stay unregistered.
type Registry struct {
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	r := &Registry{loaders: map[string]Loader{}}
	r.Register("csv", CSVLoader{})
	return r
}

func (r *Registry) Register(fileType string, l Loader) {
	r.loaders[strings.ToLower(strings.TrimSpace(fileType))] = l
}

// ForPath resolves the loader and canonical file type for a path.
func (r *Registry) ForPath(path string) (Loader, string, error) {
	ft := FileTypeFor(path)
	l, ok := r.loaders[ft]
	if !ok {
		return nil, "", fmt.Errorf("unsupported file type %q for %s", ft, filepath.Base(path))
	}
	return l, ft, nil
}

// FileTypeFor returns the canonical lineage file type for a path.
func FileTypeFor(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "csv"
	}
	return ext
}

// CSVLoader reads a headered CSV file and reconciles it.
type CSVLoader struct {
	// Comma overrides the field separator when non-zero.
	Comma rune
}

func (l CSVLoader) Load(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if l.Comma != 0 {
		reader.Comma = l.Comma
	}
	// Source files are occasionally ragged; reconciliation pads short rows.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s is empty", filepath.Base(path))
	}

	return Reconcile(RawTable{Header: records[0], Records: records[1:]})
}
