package host_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zstd"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/host"
	"github.com/reglet-dev/pseudokernel/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// LoaderIntegrationSuite tests the Loader against an in-memory tree.
type LoaderIntegrationSuite struct {
	suite.Suite
	fsys   fstest.MapFS
	loader *host.Loader
}

func (s *LoaderIntegrationSuite) SetupTest() {
	enc, err := zstd.NewWriter(nil)
	s.Require().NoError(err)
	defer enc.Close()

	corlib := bytes.Repeat([]byte("corlib"), 100)
	s.fsys = fstest.MapFS{
		"run.yaml": {Data: []byte(`
guest: index.wasm
pid: 5
files:
  - name: mscorlib.dll
    path: blobs/mscorlib.dll.zst
    blake3: ` + vfs.Digest(corlib) + `
  - name: hello.dll
    path: hello.dll
`)},
		"index.wasm":             {Data: []byte("\x00asm\x01\x00\x00\x00")},
		"blobs/mscorlib.dll.zst": {Data: enc.EncodeAll(corlib, nil)},
		"hello.dll":              {Data: []byte("hello")},
		"nested/run.yaml":        {Data: []byte("guest: g.wasm\n")},
		"nested/g.wasm":          {Data: []byte("nested guest")},
	}
	s.loader = host.NewLoader()
}

func (s *LoaderIntegrationSuite) TestValidManifest() {
	plan, err := s.loader.Load(s.fsys, "run.yaml")
	s.Require().NoError(err)

	s.Equal("index.wasm", plan.Manifest.Guest)
	s.Equal(int32(5), plan.Manifest.PID)
	s.Equal([]byte("\x00asm\x01\x00\x00\x00"), plan.Guest)
	s.Equal([]string{"hello.dll", "mscorlib.dll"}, plan.Files.Names())

	content, ok := plan.Files.Lookup("/mscorlib.dll")
	s.Require().True(ok)
	s.Equal(bytes.Repeat([]byte("corlib"), 100), content)
}

func (s *LoaderIntegrationSuite) TestNestedManifestResolvesRelativeToItsDirectory() {
	plan, err := s.loader.Load(s.fsys, "nested/run.yaml")
	s.Require().NoError(err)
	s.Equal([]byte("nested guest"), plan.Guest)
	s.Equal(0, plan.Files.Len())
}

func (s *LoaderIntegrationSuite) TestInvalidYAML() {
	s.fsys["bad.yaml"] = &fstest.MapFile{Data: []byte("guest: [")}
	_, err := s.loader.Load(s.fsys, "bad.yaml")
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to parse manifest")
}

func (s *LoaderIntegrationSuite) TestValidationFailure() {
	s.fsys["invalid.yaml"] = &fstest.MapFile{Data: []byte("pid: -2\n")}
	_, err := s.loader.Load(s.fsys, "invalid.yaml")

	var cfgErr *kerrors.ConfigError
	s.Require().ErrorAs(err, &cfgErr)
	s.Equal("guest", cfgErr.Field)
	s.Contains(err.Error(), "- guest: is required")
	s.Contains(err.Error(), "- pid: must be at least 0")
}

func (s *LoaderIntegrationSuite) TestMissingGuest() {
	s.fsys["noguest.yaml"] = &fstest.MapFile{Data: []byte("guest: absent.wasm\n")}
	_, err := s.loader.Load(s.fsys, "noguest.yaml")
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to read guest")
}

func (s *LoaderIntegrationSuite) TestDigestMismatch() {
	s.fsys["pinned.yaml"] = &fstest.MapFile{Data: []byte(`
guest: index.wasm
files:
  - name: hello.dll
    path: hello.dll
    blake3: ` + vfs.Digest([]byte("other")) + `
`)}
	_, err := s.loader.Load(s.fsys, "pinned.yaml")

	var integrity *kerrors.IntegrityError
	s.Require().ErrorAs(err, &integrity)
	s.Equal("hello.dll", integrity.Name)
}

func (s *LoaderIntegrationSuite) TestMissingManifest() {
	_, err := s.loader.Load(s.fsys, "absent.yaml")
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to read manifest")
}

func TestLoaderIntegrationSuite(t *testing.T) {
	suite.Run(t, new(LoaderIntegrationSuite))
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g.wasm"), []byte("guest"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.yaml"), []byte("guest: g.wasm\n"), 0o600))

	plan, err := host.NewLoader().LoadFile(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []byte("guest"), plan.Guest)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "escape.yaml"), []byte("guest: ../g.wasm\n"), 0o600))
	_, err = host.NewLoader().LoadFile(filepath.Join(dir, "escape.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must stay below")
}

func TestLoader_WithoutValidator(t *testing.T) {
	loader := host.NewLoader(host.WithValidator(nil))
	m, err := loader.LoadManifest([]byte("pid: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), m.PID)
}
