package vfs

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/reglet-dev/pseudokernel/domain/entities"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/zeebo/blake3"
)

// Compression names accepted in a FileSpec.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// LoadFileSet reads every spec from fsys. Blobs marked zstd, or whose path
// ends in ".zst", are decompressed. A pinned BLAKE3 digest is checked
// against the decompressed content and a mismatch fails the whole load.
func LoadFileSet(fsys fs.FS, specs []entities.FileSpec) (*FileSet, error) {
	var dec *zstd.Decoder
	defer func() {
		if dec != nil {
			dec.Close()
		}
	}()

	files := make(map[string][]byte, len(specs))
	for _, spec := range specs {
		if _, dup := files[spec.Name]; dup {
			return nil, &kerrors.ConfigError{Field: "files", Err: fmt.Errorf("duplicate file name %q", spec.Name)}
		}

		raw, err := fs.ReadFile(fsys, spec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for %q: %w", spec.Path, spec.Name, err)
		}

		content := raw
		if isZstd(spec) {
			if dec == nil {
				if dec, err = zstd.NewReader(nil); err != nil {
					return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
				}
			}
			if content, err = dec.DecodeAll(raw, nil); err != nil {
				return nil, fmt.Errorf("failed to decompress %s: %w", spec.Path, err)
			}
		}

		if spec.Blake3 != "" {
			if err := verifyDigest(spec.Name, spec.Blake3, content); err != nil {
				return nil, err
			}
		}
		files[spec.Name] = content
	}
	return NewFileSet(files), nil
}

func isZstd(spec entities.FileSpec) bool {
	switch spec.Compression {
	case CompressionZstd:
		return true
	case CompressionNone:
		return false
	default:
		return strings.HasSuffix(spec.Path, ".zst")
	}
}

// Digest returns the hex BLAKE3-256 digest of content, the form FileSpec pins.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func verifyDigest(name, expected string, content []byte) error {
	actual := Digest(content)
	if !strings.EqualFold(actual, expected) {
		return &kerrors.IntegrityError{Name: name, Expected: expected, Actual: actual}
	}
	return nil
}
