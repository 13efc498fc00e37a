package config

import (
	"path/filepath"

	"github.com/sidkik/versync/pkg/errors"
)

// PublishConfigName is the name of the optional config file in the root of a
// directory that's being published.
const PublishConfigName = "versync.yaml"

// alwaysIgnored are never published.
var alwaysIgnored = []string{PublishConfigName, ".git", ".DS_Store"}

// InitialPublishConfigVersion is the first version of the publish config.
// Config files that do not specify a version will default to this version.
const InitialPublishConfigVersion = "v1alpha1"

// SupportedPublishConfigVersion is the supported version of the publish
// config of the current binary.
const SupportedPublishConfigVersion = "v1alpha1"

// PublishConfig controls which files in a directory are published.
type PublishConfig struct {
	Version string `json:"version,omitempty"`

	// Ignore is a list of glob patterns. Patterns containing a '/' are
	// matched against the path relative to the published directory. Other
	// patterns are matched against the file name.
	Ignore []string `json:"ignore,omitempty"`
}

func (c PublishConfig) getVersion() string {
	return c.Version
}

// ParsePublishConfig parses the publish config in `dir`. The config is
// optional. Either way, the returned ignore list includes the files that are
// never published.
func ParsePublishConfig(dir string) (PublishConfig, error) {
	configPath := filepath.Join(dir, PublishConfigName)
	config := PublishConfig{Version: InitialPublishConfigVersion}
	if err := parseConfig(configPath, &config, SupportedPublishConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return PublishConfig{}, errors.WithContext(err, "parse")
		}
	}

	config.Ignore = append(config.Ignore, alwaysIgnored...)
	return config, nil
}
