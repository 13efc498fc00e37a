package manifest

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

// WriteAtomic writes `data` to `path` by writing a temporary file in the same
// directory and renaming it into place. Readers either see the old contents or
// the new contents, never a partial write.
func WriteAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp")
	if err != nil {
		return errors.WithContext(err, "create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpPath)
		return errors.WithContext(err, "write temp file")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		fs.Remove(tmpPath)
		return errors.WithContext(err, "sync temp file")
	}

	if err := tmp.Close(); err != nil {
		fs.Remove(tmpPath)
		return errors.WithContext(err, "close temp file")
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return errors.WithContext(err, "rename")
	}
	return nil
}
