package dtm

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadReferenceVector reads a reference vector from a YAML (or JSON) file.
// Unknown fields are rejected.
func LoadReferenceVector(path string) (ReferenceVector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReferenceVector{}, fmt.Errorf("reading reference vector: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var r ReferenceVector
	if err := decoder.Decode(&r); err != nil {
		return ReferenceVector{}, fmt.Errorf("parsing reference vector %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return ReferenceVector{}, fmt.Errorf("reference vector %s: %w", path, err)
	}
	return r, nil
}

// Bootstrap installs the reference vector stored at path, so compensation
// can start before the first accounting period has elapsed.
func (tm *TrafficManager) Bootstrap(ctx context.Context, path string) error {
	r, err := LoadReferenceVector(path)
	if err != nil {
		return err
	}
	return tm.BootstrapVector(ctx, r)
}

// BootstrapVector installs an already loaded bootstrap reference vector.
func (tm *TrafficManager) BootstrapVector(ctx context.Context, r ReferenceVector) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return tm.installReference(ctx, r, "bootstrap")
}
