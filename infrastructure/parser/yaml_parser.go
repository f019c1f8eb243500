// Package parser decodes run manifests.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/reglet-dev/pseudokernel/domain/entities"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlManifestParser implements ManifestParser for YAML.
type YamlManifestParser struct {
	strict bool
}

// ParserOption configures a YamlManifestParser.
type ParserOption func(*YamlManifestParser)

// WithKnownFields rejects keys the manifest does not define. On by default,
// so a misspelled knob fails instead of being ignored.
func WithKnownFields(enabled bool) ParserOption {
	return func(p *YamlManifestParser) {
		p.strict = enabled
	}
}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser(opts ...ParserOption) ports.ManifestParser {
	p := &YamlManifestParser{strict: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse unmarshals YAML bytes into a Manifest struct.
func (p *YamlManifestParser) Parse(data []byte) (*entities.Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)

	var manifest entities.Manifest
	if err := dec.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, err
	}
	return &manifest, nil
}
