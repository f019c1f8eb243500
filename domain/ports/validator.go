package ports

import "github.com/reglet-dev/pseudokernel/domain/entities"

// ManifestValidator checks a parsed manifest before anything is loaded.
type ManifestValidator interface {
	Validate(manifest *entities.Manifest) (*entities.ValidationResult, error)
}
