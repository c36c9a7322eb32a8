package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/scholarship-aggregator/internal/source"
)

// LoadSources reads a YAML list of source descriptors. Unknown keys are
// rejected so that a misspelled selector field fails loudly.
func LoadSources(path string) ([]source.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a YAML list of source descriptors.
func ParseSources(data []byte) ([]source.Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var descs []source.Descriptor
	if err := dec.Decode(&descs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	return descs, nil
}
