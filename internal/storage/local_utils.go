package storage

import (
	"path/filepath"
	"strings"
)

func localStorageFullpath(baseDir, key string) string {
	// Clean against a rooted path so ".." segments cannot leave baseDir.
	return filepath.Join(baseDir, filepath.FromSlash(filepath.Clean("/"+strings.TrimPrefix(key, "/"))))
}
