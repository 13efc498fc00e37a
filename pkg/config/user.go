package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

const (
	// UserConfigPath is the default path to the versync user config.
	UserConfigPath = "~/.versync.yaml"

	// DefaultDataDir is where published versions are stored if the user
	// config doesn't say otherwise.
	DefaultDataDir = "~/.versync/data"

	// DefaultServersDir is where server settings are stored if the user
	// config doesn't say otherwise.
	DefaultServersDir = "~/.versync/servers"

	// InitialUserConfigVersion is the first version of the versync user
	// config. Config files that do not specify a version will default to
	// this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the versync
	// user config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User contains the machine-wide versync configuration.
type User struct {
	Version    string `json:"version,omitempty"`
	DataDir    string `json:"dataDir,omitempty"`
	ServersDir string `json:"serversDir,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser parses the User stored in the default path. The defaults are
// returned if the file doesn't exist.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return User{}, errors.WithContext(err, "parse")
		}
	}

	if config.DataDir == "" {
		config.DataDir = DefaultDataDir
	}
	if config.ServersDir == "" {
		config.ServersDir = DefaultServersDir
	}

	if config.DataDir, err = expandPath(path, config.DataDir); err != nil {
		return User{}, errors.WithContext(err, "expand data directory")
	}

	if config.ServersDir, err = expandPath(path, config.ServersDir); err != nil {
		return User{}, errors.WithContext(err, "expand servers directory")
	}
	return config, nil
}

// expandPath expands ~'s, and evaluates relative paths relative to the
// config path.
func expandPath(configPath, path string) (string, error) {
	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(configPath), path)
	}
	return path, nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := manifest.WriteAtomic(fs, path, yamlBytes); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the path to the user's versync configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
