package config

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout            io.Writer = os.Stdout
	parseUserConfig             = config.ParseUser
	writeUserConfig             = config.WriteUser
	getUserConfigPath           = config.GetUserConfigPath
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the versync user configuration",
		Long: "Setup the versync user configuration.\n\n" +
			"Fields that aren't set with flags keep their current value.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.DataDir, "data-dir", "",
		"The directory where published versions are stored.")
	cmd.Flags().StringVar(&cliOpts.ServersDir, "servers-dir", "",
		"The directory where server settings are stored.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-data-dir",
			short: "Get the directory where published versions are stored",
			fn:    func(cfg config.User) string { return cfg.DataDir },
		},
		{
			use:   "get-servers-dir",
			short: "Get the directory where server settings are stored",
			fn:    func(cfg config.User) string { return cfg.ServersDir },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Args:  cobra.NoArgs,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig merges `cliOpts` into the current user config, and writes the
// result.
func SetupConfig(cliOpts config.User) error {
	cfg, err := parseUserConfig()
	if err != nil {
		log.WithError(err).Debug("Failed to read current config")
		cfg = config.User{}
	}

	if cliOpts.DataDir != "" {
		cfg.DataDir = cliOpts.DataDir
	}
	if cliOpts.ServersDir != "" {
		cfg.ServersDir = cliOpts.ServersDir
	}

	if err := writeUserConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := getUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}
