package modules

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem is the read-only view of storage used to resolve and load
// modules. Names are slash-separated and absolute.
type FileSystem interface {
	// Exists reports whether name is a regular file.
	Exists(name string) bool
	// ReadText returns the contents of name.
	ReadText(name string) (string, error)
}

// FSFileSystem adapts an [fs.FS], treating its root as "/".
type FSFileSystem struct {
	FS fs.FS
}

var _ FileSystem = FSFileSystem{}

// Exists implements [FileSystem].
func (f FSFileSystem) Exists(name string) bool {
	info, err := fs.Stat(f.FS, fsName(name))
	return err == nil && info.Mode().IsRegular()
}

// ReadText implements [FileSystem].
func (f FSFileSystem) ReadText(name string) (string, error) {
	b, err := fs.ReadFile(f.FS, fsName(name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fsName converts an absolute slash path into an [fs.ValidPath] name.
func fsName(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return "."
	}
	return name
}

// OSFileSystem reads from the host file system.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

// Exists implements [FileSystem].
func (OSFileSystem) Exists(name string) bool {
	info, err := os.Stat(filepath.FromSlash(name))
	return err == nil && info.Mode().IsRegular()
}

// ReadText implements [FileSystem].
func (OSFileSystem) ReadText(name string) (string, error) {
	b, err := os.ReadFile(filepath.FromSlash(name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
