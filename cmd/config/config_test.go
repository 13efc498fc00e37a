package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
)

func TestSetupConfig(t *testing.T) {
	current := config.User{
		Version:    config.SupportedUserConfigVersion,
		DataDir:    "/home/operator/.versync/data",
		ServersDir: "/home/operator/.versync/servers",
	}

	tests := []struct {
		name      string
		cliOpts   config.User
		parseErr  error
		expConfig config.User
	}{
		{
			name:      "KeepCurrent",
			expConfig: current,
		},
		{
			name:    "OverrideDataDir",
			cliOpts: config.User{DataDir: "/srv/versync"},
			expConfig: config.User{
				Version:    config.SupportedUserConfigVersion,
				DataDir:    "/srv/versync",
				ServersDir: current.ServersDir,
			},
		},
		{
			name:      "UnparsableConfig",
			cliOpts:   config.User{ServersDir: "/srv/servers"},
			parseErr:  errors.New("bad yaml"),
			expConfig: config.User{ServersDir: "/srv/servers"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			stdout = &out
			parseUserConfig = func() (config.User, error) {
				if test.parseErr != nil {
					return config.User{}, test.parseErr
				}
				return current, nil
			}

			var written config.User
			writeUserConfig = func(cfg config.User) error {
				written = cfg
				return nil
			}
			getUserConfigPath = func() (string, error) {
				return "/home/operator/.versync.yaml", nil
			}

			assert.NoError(t, SetupConfig(test.cliOpts))
			assert.Equal(t, test.expConfig, written)
			assert.Equal(t, "Wrote config to /home/operator/.versync.yaml\n", out.String())
		})
	}
}

func TestSetupConfigWriteError(t *testing.T) {
	parseUserConfig = func() (config.User, error) {
		return config.User{}, nil
	}
	writeUserConfig = func(config.User) error {
		return errors.New("permission denied")
	}

	err := SetupConfig(config.User{DataDir: "/srv"})
	assert.EqualError(t, err, "write config: permission denied")
}

func TestGetters(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	parseUserConfig = func() (config.User, error) {
		return config.User{DataDir: "/srv/data", ServersDir: "/srv/servers"}, nil
	}

	cmd := New()
	cmd.SetArgs([]string{"get-servers-dir"})
	assert.NoError(t, cmd.Execute())
	assert.Equal(t, "/srv/servers\n", out.String())
}
