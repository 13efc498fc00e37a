package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/pkg/backend"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/target"
)

// testTimeout bounds `versync server test`.
const testTimeout = 30 * time.Second

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	parseUserConfig           = config.ParseUser
	newBackend                = backend.New
)

// New creates a new `server` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the servers that versions are synced to",
	}
	cmd.AddCommand(newAddCommand(), newSetCommand(), newRemoveCommand(),
		newListCommand(), newTestCommand())
	return cmd
}

type connectionFlags struct {
	host, user, password string
	kind                 string
	downloadKind         string
	downloadHost         string
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "",
		"For filesystem servers, the directory to sync to. For s3 servers, "+
			"[scheme://]endpoint/bucket[/prefix].")
	cmd.Flags().StringVar(&f.user, "user", "", "The user or access key.")
	cmd.Flags().StringVar(&f.password, "password", "", "The password or secret key.")
	cmd.Flags().StringVar(&f.kind, "backend", string(backend.Filesystem),
		"The kind of server (filesystem or s3).")
	cmd.Flags().StringVar(&f.downloadKind, "download-kind", string(backend.HTTPS),
		"The protocol clients use to download from the server (http or https).")
	cmd.Flags().StringVar(&f.downloadHost, "download-host", "",
		"The host clients download from.")
}

func (f connectionFlags) apply(settings *target.Settings) {
	settings.Host = f.host
	settings.User = f.user
	settings.Password = f.password
	settings.Backend = backend.Kind(f.kind)
	settings.DownloadKind = backend.DownloadKind(f.downloadKind)
	settings.DownloadHost = f.downloadHost
}

func newAddCommand() *cobra.Command {
	var role string
	var flags connectionFlags
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a server",
		Long: "Register a server. Servers registered without a host are synced\n" +
			"once they're configured with `versync server set`.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			settings := target.Settings{Name: args[0], Role: target.Role(role)}
			flags.apply(&settings)
			if err := add(settings); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&role, "role", string(target.Mirror),
		"The role of the server. Mirrors receive every version's content. "+
			"Masters receive the live version pointer and manifests.")
	flags.register(cmd)
	return cmd
}

func add(settings target.Settings) error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	if err := settings.Validate(); err != nil {
		return errors.NewFriendlyError("Invalid server settings: %s", err)
	}

	f := target.NewSettingsFile(userConfig.ServerSettingsPath(settings.Name))
	if _, err := f.Load(); err == nil {
		return errors.NewFriendlyError("A server named %q already exists. "+
			"Use `versync server set` to change its settings.", settings.Name)
	}

	if err := f.Save(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}
	fmt.Fprintf(stdout, "Added server %q\n", settings.Name)
	return nil
}

func newSetCommand() *cobra.Command {
	var flags connectionFlags
	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Change the connection settings of a server",
		Long: "Change the connection settings of a server. Running `versync serve`\n" +
			"processes pick up the change, and verify the live and next versions\n" +
			"against the new server.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := set(args[0], flags); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.register(cmd)
	return cmd
}

func set(name string, flags connectionFlags) error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	f := target.NewSettingsFile(userConfig.ServerSettingsPath(name))
	settings, err := f.Load()
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return errors.NewFriendlyError("There's no server named %q.", name)
		}
		return errors.WithContext(err, "load settings")
	}

	if flags.host == "" {
		return errors.NewFriendlyError("The --host flag is required.")
	}

	flags.apply(&settings)
	if err := settings.Validate(); err != nil {
		return errors.NewFriendlyError("Invalid server settings: %s", err)
	}

	if err := f.Save(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}
	fmt.Fprintf(stdout, "Updated server %q\n", name)
	return nil
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Stop syncing to a server",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := remove(args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func remove(name string) error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	f := target.NewSettingsFile(userConfig.ServerSettingsPath(name))
	if _, err := f.Load(); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return errors.NewFriendlyError("There's no server named %q.", name)
		}
	}

	if err := f.Remove(); err != nil {
		return errors.WithContext(err, "remove settings")
	}
	fmt.Fprintf(stdout, "Removed server %q\n", name)
	return nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered servers",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := list(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func list() error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	names, err := userConfig.ListServers()
	if err != nil {
		return errors.WithContext(err, "list servers")
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tROLE\tBACKEND\tHOST")
	for _, name := range names {
		settings, err := target.NewSettingsFile(userConfig.ServerSettingsPath(name)).Load()
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t(invalid: %s)\n", name, errors.GetPrintableMessage(err))
			continue
		}

		host := settings.Host
		kind := string(settings.Backend)
		if !settings.Configured() {
			host = "(not configured)"
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, settings.Role, kind, host)
	}
	return w.Flush()
}

func newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME",
		Short: "Check that a server is reachable",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			if err := test(ctx, args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func test(ctx context.Context, name string) error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	settings, err := target.NewSettingsFile(userConfig.ServerSettingsPath(name)).Load()
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return errors.NewFriendlyError("There's no server named %q.", name)
		}
		return errors.WithContext(err, "load settings")
	}

	if !settings.Configured() {
		return errors.NewFriendlyError("Server %q hasn't been configured.", name)
	}

	b, err := newBackend(settings.BackendOptions())
	if err != nil {
		return errors.WithContext(err, "connect")
	}
	defer b.Close()

	if err := b.TestConnection(ctx); err != nil {
		return errors.WithContext(err, "test connection")
	}
	fmt.Fprintf(stdout, "Successfully connected to %q\n", name)
	return nil
}
