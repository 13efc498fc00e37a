/*
Package manifest describes the contents of a single published version.

A Manifest lists every file in a version's content tree along with the sha512
hash of its contents, and the ignore filters that were applied when the tree
was scanned. Manifests are immutable once written: publishing different
content requires a new version number.

Each manifest file on disk has a companion file holding the hash of the
manifest itself. Remote servers store a copy of that hash as a marker, so
checking whether a server already has a version only requires downloading a
single short string.
*/
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

// FileEntry is a single file within a version.
type FileEntry struct {
	// Path is the slash-separated path of the file relative to the content
	// root.
	Path string

	// Hash is the base64 encoded sha512 hash of the file's contents.
	Hash string
}

// Manifest describes the expected state of a version.
type Manifest struct {
	Version int

	// Files is sorted by path, and paths are unique.
	Files []FileEntry

	Ignore []string
}

// MissingHash is reported as the actual hash of files that were deleted after
// they were published.
const MissingHash = "<missing>"

// VersionString returns the canonical name of a version. It's used as the
// directory name for the version both locally and on remote servers.
func VersionString(version int) string {
	return fmt.Sprintf("v%08d", version)
}

// Create scans `rootDir` and returns a manifest containing every file that
// isn't excluded by `ignore`.
func Create(version int, rootDir string, ignore []string) (*Manifest, error) {
	filter, err := newIgnoreFilter(ignore)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Version: version}
	if len(ignore) != 0 {
		m.Ignore = append([]string{}, ignore...)
	}
	err = afero.Walk(fs, rootDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.IOError{Path: path, Err: errors.WithContext(err, "walk")}
		}

		if path == rootDir {
			return nil
		}

		relPath, err := filepath.Rel(rootDir, path)
		if err != nil || strings.HasPrefix(relPath, "..") {
			// This shouldn't happen because `path` is always a child of `rootDir`.
			return errors.IOError{Path: path, Err: errors.New("not within %q", rootDir)}
		}
		relPath = filepath.ToSlash(relPath)

		if filter.Ignored(relPath) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, FileEntry{Path: relPath, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.sortFiles()
	return m, nil
}

func (m *Manifest) sortFiles() {
	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Path < m.Files[j].Path
	})
}

// Lookup returns the entry for `path`.
func (m *Manifest) Lookup(path string) (FileEntry, bool) {
	i := sort.Search(len(m.Files), func(i int) bool {
		return m.Files[i].Path >= path
	})
	if i < len(m.Files) && m.Files[i].Path == path {
		return m.Files[i], true
	}
	return FileEntry{}, false
}

// Hash returns the hash of the serialized manifest.
func (m *Manifest) Hash() string {
	return HashBytes(m.Marshal())
}

// Equal returns whether the two manifests describe the same files and filters.
func (m *Manifest) Equal(other *Manifest) bool {
	if m == nil || other == nil {
		return m == other
	}

	if m.Version != other.Version || len(m.Files) != len(other.Files) ||
		len(m.Ignore) != len(other.Ignore) {
		return false
	}

	for i := range m.Files {
		if m.Files[i] != other.Files[i] {
			return false
		}
	}

	for i := range m.Ignore {
		if m.Ignore[i] != other.Ignore[i] {
			return false
		}
	}
	return true
}

// Verify re-hashes every file under `rootDir` and checks it against the hash
// recorded in the manifest. It returns an IntegrityError for the first file
// that doesn't match.
func (m *Manifest) Verify(rootDir string) error {
	for _, f := range m.Files {
		actual, err := HashFile(filepath.Join(rootDir, filepath.FromSlash(f.Path)))
		switch {
		case errors.Is(err, os.ErrNotExist):
			actual = MissingHash
		case err != nil:
			return errors.WithContext(err, "hash")
		}

		if actual != f.Hash {
			return errors.IntegrityError{
				Path:     f.Path,
				Expected: f.Hash,
				Actual:   actual,
			}
		}
	}
	return nil
}
