package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

const (
	versionKey = "VERSION"
	ignoreKey  = "IGNORE"
	fileKey    = "FILE"

	// HashFileSuffix is appended to a manifest's path to get the path of the
	// file containing the manifest's hash.
	HashFileSuffix = ".sha512"
)

// Marshal returns the serialized manifest. The output is deterministic, so
// equal manifests always have equal hashes.
func (m *Manifest) Marshal() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s=%d\n", versionKey, m.Version)
	for _, pattern := range m.Ignore {
		fmt.Fprintf(&buf, "%s=%s\n", ignoreKey, pattern)
	}
	for _, f := range m.Files {
		fmt.Fprintf(&buf, "%s=%s %s\n", fileKey, f.Hash, f.Path)
	}
	return buf.Bytes()
}

// Write writes the manifest to `path`, and its hash to the companion hash file.
// The manifest is written first so that the hash file never refers to a
// manifest that doesn't exist.
func (m *Manifest) Write(path string) error {
	data := m.Marshal()
	if err := WriteAtomic(fs, path, data); err != nil {
		return errors.IOError{Path: path, Err: errors.WithContext(err, "write manifest")}
	}

	hashPath := path + HashFileSuffix
	if err := WriteAtomic(fs, hashPath, []byte(HashBytes(data)+"\n")); err != nil {
		return errors.IOError{Path: hashPath, Err: errors.WithContext(err, "write hash")}
	}
	return nil
}

// CreateFromFile parses the manifest at `path`. It returns a FileNotFound
// error if the manifest doesn't exist, and a FormatError if it's malformed.
func CreateFromFile(path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.IOError{Path: path, Err: errors.WithContext(err, "read")}
	}
	return Unmarshal(path, data)
}

// Unmarshal parses a serialized manifest. `path` is only used for error
// messages.
func Unmarshal(path string, data []byte) (*Manifest, error) {
	m := &Manifest{Version: -1}
	seen := map[string]struct{}{}

	formatErr := func(line int, reason string, args ...interface{}) error {
		return errors.FormatError{Path: path, Line: line, Reason: fmt.Sprintf(reason, args...)}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			return nil, formatErr(lineNum, "expected KEY=VALUE")
		}
		key, value := line[:eq], line[eq+1:]

		switch key {
		case versionKey:
			if m.Version != -1 {
				return nil, formatErr(lineNum, "duplicate %s", versionKey)
			}
			version, err := strconv.Atoi(value)
			if err != nil || version < 0 {
				return nil, formatErr(lineNum, "bad version %q", value)
			}
			m.Version = version
		case ignoreKey:
			if value == "" {
				return nil, formatErr(lineNum, "empty ignore pattern")
			}
			m.Ignore = append(m.Ignore, value)
		case fileKey:
			space := strings.IndexByte(value, ' ')
			if space <= 0 || space == len(value)-1 {
				return nil, formatErr(lineNum, "expected `%s=<hash> <path>`", fileKey)
			}

			entry := FileEntry{Hash: value[:space], Path: value[space+1:]}
			if !isContentPath(entry.Path) {
				return nil, formatErr(lineNum, "path %q must be relative and within the content root", entry.Path)
			}
			if _, ok := seen[entry.Path]; ok {
				return nil, formatErr(lineNum, "duplicate path %q", entry.Path)
			}
			seen[entry.Path] = struct{}{}
			m.Files = append(m.Files, entry)
		default:
			return nil, formatErr(lineNum, "unknown key %q", key)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.IOError{Path: path, Err: errors.WithContext(err, "scan")}
	}

	if m.Version == -1 {
		return nil, formatErr(0, "missing %s", versionKey)
	}

	m.sortFiles()
	return m, nil
}

// ReadHash returns the hash stored next to the manifest at `manifestPath`.
func ReadHash(manifestPath string) (string, error) {
	hashPath := manifestPath + HashFileSuffix
	data, err := afero.ReadFile(fs, hashPath)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return "", errors.FileNotFound{Path: hashPath}
		}
		return "", errors.IOError{Path: hashPath, Err: errors.WithContext(err, "read")}
	}

	hash := strings.TrimSpace(string(data))
	if hash == "" {
		return "", errors.FormatError{Path: hashPath, Reason: "empty hash"}
	}
	return hash, nil
}

// isContentPath returns whether `p` is a clean, slash-separated path that
// stays within the content root.
func isContentPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return false
	}

	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return false
		}
	}
	return true
}
