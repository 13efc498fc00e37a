package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/errors"
)

func TestParsePublishConfig(t *testing.T) {
	const configPath = "/src/site/versync.yaml"

	tests := []struct {
		name      string
		input     string
		expConfig PublishConfig
		expError  error
	}{
		{
			name: "Missing",
			expConfig: PublishConfig{
				Version: InitialPublishConfigVersion,
				Ignore:  alwaysIgnored,
			},
		},
		{
			name:  "Ignore",
			input: "ignore:\n- '*.tmp'\n- build/cache\n",
			expConfig: PublishConfig{
				Version: InitialPublishConfigVersion,
				Ignore:  append([]string{"*.tmp", "build/cache"}, alwaysIgnored...),
			},
		},
		{
			name:  "IncorrectVersion",
			input: "version: v2\n",
			expError: errors.WithContext(incompatibleVersionError{
				path:   configPath,
				exp:    SupportedPublishConfigVersion,
				actual: "v2",
			}, "parse"),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll("/src/site", 0755))
			if test.input != "" {
				require.NoError(t, afero.WriteFile(fs, configPath, []byte(test.input), 0644))
			}

			config, err := ParsePublishConfig("/src/site")
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestParsePublishConfigUnknownField(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/versync.yaml", []byte("ignroe: ['*.tmp']\n"), 0644))

	_, err := ParsePublishConfig("/src")
	var friendly errors.FriendlyError
	assert.True(t, errors.As(err, &friendly))
}
