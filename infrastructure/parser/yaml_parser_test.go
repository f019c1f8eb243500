package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullManifest = `
guest: build/index.wasm
entry: _start
pid: 7
tid: 8
trace: true
read_advance: false
auto_stub: true
unimplemented: [socket, fork]
files:
  - name: mscorlib.dll
    path: blobs/mscorlib.dll.zst
    compression: zstd
    blake3: af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262
  - name: hello.dll
    path: hello.dll
`

func TestYamlManifestParser_Full(t *testing.T) {
	m, err := NewYamlManifestParser().Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, "build/index.wasm", m.Guest)
	assert.Equal(t, "_start", m.Entry)
	assert.Equal(t, int32(7), m.PID)
	assert.Equal(t, int32(8), m.TID)
	assert.True(t, m.Trace)
	assert.True(t, m.AutoStub)
	require.NotNil(t, m.ReadAdvance)
	assert.False(t, *m.ReadAdvance)
	assert.Equal(t, []string{"socket", "fork"}, m.Unimplemented)

	require.Len(t, m.Files, 2)
	assert.Equal(t, "mscorlib.dll", m.Files[0].Name)
	assert.Equal(t, "zstd", m.Files[0].Compression)
	assert.Len(t, m.Files[0].Blake3, 64)
	assert.Empty(t, m.Files[1].Compression)
}

func TestYamlManifestParser_Minimal(t *testing.T) {
	m, err := NewYamlManifestParser().Parse([]byte("guest: a.wasm\n"))
	require.NoError(t, err)
	assert.Equal(t, "a.wasm", m.Guest)
	assert.Nil(t, m.ReadAdvance, "unset means default")
	assert.Empty(t, m.Files)
}

func TestYamlManifestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty manifest"},
		{"bad yaml", "guest: [unclosed", ""},
		{"unknown field", "guest: a.wasm\ntrcae: true\n", "trcae"},
		{"wrong type", "guest: a.wasm\npid: many\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYamlManifestParser().Parse([]byte(tt.data))
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestYamlManifestParser_Lenient(t *testing.T) {
	m, err := NewYamlManifestParser(WithKnownFields(false)).Parse([]byte("guest: a.wasm\nextra: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "a.wasm", m.Guest)
}
