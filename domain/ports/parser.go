package ports

import "github.com/reglet-dev/pseudokernel/domain/entities"

// ManifestParser parses raw manifest bytes into a Manifest.
type ManifestParser interface {
	// Parse unmarshals manifest bytes into a Manifest struct.
	Parse(data []byte) (*entities.Manifest, error)
}
