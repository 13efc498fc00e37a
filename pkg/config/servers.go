package config

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

// serverFileExt is the extension of server settings files.
const serverFileExt = ".yaml"

// ServerSettingsPath returns the path of the settings file for the named
// server.
func (u User) ServerSettingsPath(name string) string {
	return filepath.Join(u.ServersDir, name+serverFileExt)
}

// CreateServersDir creates the servers directory if it doesn't exist.
func (u User) CreateServersDir() error {
	if err := fs.MkdirAll(u.ServersDir, 0755); err != nil {
		return errors.WithContext(err, "create servers directory")
	}
	return nil
}

// ListServers returns the names of the servers that have settings files,
// sorted alphabetically.
func (u User) ListServers() ([]string, error) {
	files, err := afero.ReadDir(fs, u.ServersDir)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "read servers directory")
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), serverFileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(f.Name(), serverFileExt))
	}
	sort.Strings(names)
	return names, nil
}
