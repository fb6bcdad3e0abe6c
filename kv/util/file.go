package util

import (
	"os"
	"path/filepath"

	"github.com/pingcap/errors"
)

func GetFileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return fi.Size(), nil
}

func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !fi.IsDir()
}

func DirExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// CreateFileIfMissing creates an empty file at path, along with its parent directories. It reports whether the file
// had to be created.
func CreateFileIfMissing(path string) (bool, error) {
	if FileExists(path) {
		return false, nil
	}
	if dir := filepath.Dir(path); !DirExists(dir) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return false, errors.WithStack(err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return true, errors.WithStack(f.Close())
}
