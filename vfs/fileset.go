package vfs

import (
	"path"
	"sort"
	"strings"
)

// FileSet maps file names to content. It is never mutated after
// construction, so tables may share one.
type FileSet struct {
	files map[string][]byte
}

// NewFileSet copies files into a new set. Keys may carry a leading "/".
func NewFileSet(files map[string][]byte) *FileSet {
	s := &FileSet{files: make(map[string][]byte, len(files))}
	for name, content := range files {
		s.files[strings.TrimPrefix(name, "/")] = content
	}
	return s
}

// EmptyFileSet returns a set with no files.
func EmptyFileSet() *FileSet {
	return NewFileSet(nil)
}

// Names returns the configured names in sorted order, without the leading "/".
func (s *FileSet) Names() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of files.
func (s *FileSet) Len() int {
	return len(s.files)
}

// Lookup resolves a guest path. Relative paths resolve against "/", the
// only working directory there is.
func (s *FileSet) Lookup(p string) ([]byte, bool) {
	name, ok := fileName(p)
	if !ok {
		return nil, false
	}
	content, ok := s.files[name]
	return content, ok
}

// fileName cleans p and returns the name below the root. ok is false for the
// root itself.
func fileName(p string) (string, bool) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", false
	}
	return clean[1:], true
}

func isRoot(p string) bool {
	return p != "" && path.Clean("/"+p) == "/"
}
