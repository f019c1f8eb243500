package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/reglet-dev/pseudokernel/application/validation"
	"github.com/reglet-dev/pseudokernel/domain/entities"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/infrastructure/parser"
	"github.com/reglet-dev/pseudokernel/vfs"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	parser    ports.ManifestParser
	validator ports.ManifestValidator
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser:    parser.NewYamlManifestParser(),
		validator: validation.NewManifestValidator(),
	}
}

// Loader orchestrates the manifest loading pipeline: parse, validate, then
// read the guest binary and the file set.
type Loader struct {
	config loaderConfig
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithValidator sets a custom manifest validator. A nil validator skips
// validation.
func WithValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// NewLoader creates a new Loader with defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{config: cfg}
}

// Plan is everything one run needs, fully loaded.
type Plan struct {
	Manifest *entities.Manifest
	Guest    []byte
	Files    *vfs.FileSet
}

// LoadManifest parses and validates a manifest.
func (l *Loader) LoadManifest(raw []byte) (*entities.Manifest, error) {
	manifest, err := l.config.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if l.config.validator != nil {
		res, err := l.config.validator.Validate(manifest)
		if err != nil {
			return nil, fmt.Errorf("validation error: %w", err)
		}
		if !res.Valid {
			msg := "manifest validation failed:"
			for _, e := range res.Errors {
				msg += fmt.Sprintf("\n- %s: %s", e.Field, e.Message)
			}
			field := ""
			if len(res.Errors) > 0 {
				field = res.Errors[0].Field
			}
			return nil, &kerrors.ConfigError{Field: field, Err: errors.New(msg)}
		}
	}

	return manifest, nil
}

// Load reads the manifest at name in fsys, then the guest and the files it
// references. Paths in the manifest are relative to its directory and may
// not leave fsys.
func (l *Loader) Load(fsys fs.FS, name string) (*Plan, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	manifest, err := l.LoadManifest(raw)
	if err != nil {
		return nil, err
	}

	base := fsys
	if dir := path.Dir(name); dir != "." {
		if base, err = fs.Sub(fsys, dir); err != nil {
			return nil, fmt.Errorf("failed to open manifest directory: %w", err)
		}
	}

	guest, err := fs.ReadFile(base, manifest.Guest)
	if err != nil {
		return nil, fmt.Errorf("failed to read guest: %w", err)
	}
	files, err := vfs.LoadFileSet(base, manifest.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to load file set: %w", err)
	}

	return &Plan{Manifest: manifest, Guest: guest, Files: files}, nil
}

// LoadFile loads a manifest from the host file system.
func (l *Loader) LoadFile(manifestPath string) (*Plan, error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, err
	}
	plan, err := l.Load(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
	if errors.Is(err, fs.ErrInvalid) {
		return nil, fmt.Errorf("%w (manifest paths must stay below %s)", err, filepath.Dir(abs))
	}
	return plan, err
}
