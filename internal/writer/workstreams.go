package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/receipts/internal/model"
)

// WriteWorkstreams validates f against the schema and writes it as YAML.
func WriteWorkstreams(path string, f model.WorkstreamsFile) error {
	if err := ValidateWorkstreams(f); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode workstreams: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode workstreams: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// LoadWorkstreams reads a workstreams file, typically one a person edited.
// Unknown keys and schema violations are errors.
func LoadWorkstreams(path string) (model.WorkstreamsFile, error) {
	var f model.WorkstreamsFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read workstreams: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, fmt.Errorf("%s: %w: empty document", path, ErrSchema)
		}
		return f, fmt.Errorf("decode workstreams %s: %w", path, err)
	}
	if err := ValidateWorkstreams(f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
