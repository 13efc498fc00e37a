package target

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ghodss/yaml"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/backend"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Settings describe how to connect to a remote server.
type Settings struct {
	Name string `json:"name"`
	Role Role   `json:"role"`

	// Host is empty for servers that have been registered, but not
	// configured yet.
	Host     string       `json:"host,omitempty"`
	User     string       `json:"user,omitempty"`
	Password string       `json:"password,omitempty"`
	Backend  backend.Kind `json:"backend,omitempty"`

	// DownloadKind and DownloadHost describe how clients download content
	// from the server once it's synced.
	DownloadKind backend.DownloadKind `json:"downloadKind,omitempty"`
	DownloadHost string               `json:"downloadHost,omitempty"`
}

// Configured returns whether the settings include connection information.
func (s Settings) Configured() bool {
	return s.Host != ""
}

// Validate checks that the settings are complete. Unconfigured settings only
// need a name and role.
func (s Settings) Validate() error {
	if s.Name == "" {
		return errors.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	if !validName.MatchString(s.Name) {
		return errors.ValidationError{Field: "name",
			Reason: "may only contain letters, digits, '.', '_', and '-'"}
	}

	if err := s.Role.Validate(); err != nil {
		return err
	}

	if !s.Configured() {
		return nil
	}

	if strings.TrimSpace(s.Host) == "" {
		return errors.ValidationError{Field: "host", Reason: "must not be blank"}
	}

	if err := s.Backend.Validate(); err != nil {
		return err
	}

	if err := s.DownloadKind.Validate(); err != nil {
		return err
	}
	return nil
}

// BackendOptions returns the options for connecting to the server.
func (s Settings) BackendOptions() backend.Options {
	return backend.Options{
		Kind:         s.Backend,
		Host:         s.Host,
		User:         s.User,
		Password:     s.Password,
		SkipIfExists: s.Role.Policy().SkipIfExists,
	}
}

// DownloadURL returns the URL that clients use to download `remotePath`
// from the server.
func (s Settings) DownloadURL(version int, remotePath string) string {
	return s.DownloadKind.DownloadURL(s.DownloadHost,
		manifest.VersionString(version)+"/"+remotePath)
}

// SettingsFile stores a server's Settings as yaml.
type SettingsFile struct {
	path     string
	lock     sync.Mutex
	fileLock *flock.Flock
}

// NewSettingsFile returns a SettingsFile for the given path.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path, fileLock: flock.New(path + ".lock")}
}

// Path returns the location of the settings file.
func (f *SettingsFile) Path() string {
	return f.path
}

// Load reads and validates the settings.
func (f *SettingsFile) Load() (Settings, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	contents, err := afero.ReadFile(fs, f.path)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return Settings{}, errors.FileNotFound{Path: f.path}
		}
		return Settings{}, errors.IOError{Path: f.path, Err: errors.WithContext(err, "read")}
	}

	var settings Settings
	if err := yaml.Unmarshal(contents, &settings); err != nil {
		return Settings{}, errors.FormatError{Path: f.path, Reason: err.Error()}
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, errors.WithContext(err, f.path)
	}

	// Servers are identified by their settings file.
	if name := f.ServerName(); settings.Name != name {
		return Settings{}, errors.WithContext(errors.ValidationError{
			Field:  "name",
			Reason: fmt.Sprintf("%q doesn't match the file name (expected %q)", settings.Name, name),
		}, f.path)
	}
	return settings, nil
}

// ServerName returns the name of the server that the file belongs to, which
// is the file name without its extension.
func (f *SettingsFile) ServerName() string {
	base := filepath.Base(f.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Save atomically replaces the settings file.
func (f *SettingsFile) Save(settings Settings) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	contents, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := f.withFileLock(func() error {
		return manifest.WriteAtomic(fs, f.path, contents)
	}); err != nil {
		return errors.IOError{Path: f.path, Err: err}
	}
	return nil
}

// Remove deletes the settings file.
func (f *SettingsFile) Remove() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	err := f.withFileLock(func() error {
		return fs.Remove(f.path)
	})
	if err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		return errors.IOError{Path: f.path, Err: errors.WithContext(err, "remove")}
	}
	fs.Remove(f.fileLock.Path())
	return nil
}

// withFileLock holds the cross-process lock while running `fn`. The lock is
// skipped when running against an in-memory filesystem in tests.
func (f *SettingsFile) withFileLock(fn func() error) error {
	if _, ok := fs.(*afero.OsFs); !ok {
		return fn()
	}

	if err := fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	if err := f.fileLock.Lock(); err != nil {
		return errors.WithContext(err, "lock")
	}
	defer f.fileLock.Unlock()
	return fn()
}
