package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dyntab/dyntab"
)

// extensions are probed in order when resolving a schema document.
// JSON documents are decoded by the YAML decoder (YAML 1.2 is a
// superset of JSON).
var extensions = []string{".yaml", ".yml", ".json"}

// Loader resolves schema documents from a directory tree and applies
// document-level defaults. Connection-specific documents live in a
// subdirectory named after the connection and shadow the default ones.
type Loader struct {
	dir string
}

// NewLoader returns a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the root schema directory.
func (l *Loader) Dir() string { return l.dir }

// Load resolves and decodes the document for model. With a non-empty
// connection, <dir>/<connection>/<model>.* is probed before
// <dir>/<model>.*. Returns SchemaNotFoundError when nothing resolves.
func (l *Loader) Load(model, connection string) (*Definition, error) {
	var tried []string
	for _, path := range l.candidates(model, connection) {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			tried = append(tried, path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", path, err)
		}
		def := &Definition{}
		if err := yaml.Unmarshal(data, def); err != nil {
			return nil, fmt.Errorf("schema: decode %s: %w", path, err)
		}
		l.applyDefaults(def)
		return def, nil
	}
	return nil, dyntab.NewSchemaNotFoundError(model, connection, tried...)
}

// candidates returns every path probed for the model, in order.
func (l *Loader) candidates(model, connection string) []string {
	var paths []string
	if connection != "" {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(l.dir, connection, model+ext))
		}
	}
	for _, ext := range extensions {
		paths = append(paths, filepath.Join(l.dir, model+ext))
	}
	return paths
}

// applyDefaults fills the document-level defaults the format leaves
// optional: primary key "id", timestamps on, soft delete off,
// integer primary keys.
func (l *Loader) applyDefaults(def *Definition) {
	if def.PrimaryKey == "" {
		def.PrimaryKey = "id"
	}
	if def.PrimaryKeyType == "" {
		def.PrimaryKeyType = PKInt
	}
	if def.Timestamps == nil {
		on := true
		def.Timestamps = &on
	}
	// SoftDelete zero value is already the documented default (false).
}
