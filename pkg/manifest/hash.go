package manifest

import (
	"crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

// HashFile returns the sha512 hash of the file at the given path.
func HashFile(path string) (string, error) {
	return hashFile(fs, path)
}

func hashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.IOError{Path: path, Err: errors.WithContext(err, "open")}
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.IOError{Path: path, Err: errors.WithContext(err, "read")}
	}
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// HashBytes returns the sha512 hash of `b`, encoded the same way as HashFile.
func HashBytes(b []byte) string {
	sum := sha512.Sum512(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}
