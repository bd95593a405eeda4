package selection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// CreatedBy identifies selection files written by the interactive selector.
const CreatedBy = "tilestitch interactive selector"

// Document is the on-disk form of a saved selection.
type Document struct {
	Region   tiles.Region `json:"region" yaml:"region"`
	Metadata Metadata     `json:"metadata" yaml:"metadata"`
}

// Metadata records how the selection was made.
type Metadata struct {
	TileCount  int       `json:"tile_count" yaml:"tile_count"`
	Dimensions string    `json:"dimensions" yaml:"dimensions"`
	CreatedBy  string    `json:"created_by" yaml:"created_by"`
	CreatedAt  time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// NewDocument wraps r with metadata stamped at now.
func NewDocument(r tiles.Region, now time.Time) Document {
	return Document{
		Region: r,
		Metadata: Metadata{
			TileCount:  r.TileCount(),
			Dimensions: fmt.Sprintf("%dx%d", r.Height(), r.Width()),
			CreatedBy:  CreatedBy,
			CreatedAt:  now.UTC(),
		},
	}
}

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["region"],
  "properties": {
    "region": {
      "type": "object",
      "required": ["y_start", "y_end", "x_start", "x_end", "channel"],
      "properties": {
        "y_start": {"type": "integer", "minimum": 0},
        "y_end":   {"type": "integer", "minimum": 0},
        "x_start": {"type": "integer", "minimum": 0},
        "x_end":   {"type": "integer", "minimum": 0},
        "channel": {"type": "integer", "minimum": 0}
      }
    },
    "metadata": {
      "type": "object",
      "properties": {
        "tile_count": {"type": "integer", "minimum": 0},
        "dimensions": {"type": "string"},
        "created_by": {"type": "string"},
        "created_at": {"type": "string"}
      }
    }
  }
}`

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("selection.json", documentSchema)
})

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Save writes doc to path atomically, as YAML for .yaml and .yml paths and
// indented JSON otherwise.
func Save(path string, doc Document) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode selection")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "save selection to %s", path)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "save selection to %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "save selection to %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "save selection to %s", path)
	}
	return nil
}

// Load reads a selection file written by Save. The content is checked
// against the document schema before decoding.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "selection file not found: %s", path)
		}
		return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "read selection %s", path)
	}
	return Decode(data, isYAML(path))
}

// Decode parses and validates a selection document.
func Decode(data []byte, asYAML bool) (Document, error) {
	if asYAML {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "parse selection")
		}
		js, err := json.Marshal(raw)
		if err != nil {
			return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "parse selection")
		}
		data = js
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "parse selection")
	}

	schema, err := compileSchema()
	if err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeInternal, err, "compile selection schema")
	}
	if err := schema.Validate(raw); err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "invalid selection")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeInvalidSelection, err, "decode selection")
	}
	return doc, nil
}
