package publish

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout        io.Writer = os.Stdout
	openAuthority           = util.OpenAuthority
)

// New creates a new `publish` command.
func New() *cobra.Command {
	var ignore []string
	var promote bool
	cmd := &cobra.Command{
		Use:   "publish DIRECTORY",
		Short: "Publish a directory as the next version",
		Long: "Copy DIRECTORY into the data directory as the next version, and\n" +
			"write its manifest. Running `versync serve` processes upload the\n" +
			"new version to every server, but it isn't live until it's promoted.\n\n" +
			"Ignore patterns are read from " + config.PublishConfigName +
			" in DIRECTORY, and from the --ignore flag.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0], ignore, promote); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil,
		"Glob patterns for files that shouldn't be published. "+
			"Patterns containing a '/' are matched against the path within DIRECTORY.")
	cmd.Flags().BoolVar(&promote, "promote", false,
		"Make the version live as soon as it's published.")
	return cmd
}

func run(dir string, ignore []string, promote bool) error {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return errors.NewFriendlyError("%q is not a directory.", dir)
	}

	publishConfig, err := config.ParsePublishConfig(dir)
	if err != nil {
		return errors.WithContext(err, "read publish config")
	}

	a, _, err := openAuthority()
	if err != nil {
		return err
	}
	defer a.Close()

	return publish(a, dir, append(publishConfig.Ignore, ignore...), promote)
}

func publish(a *authority.Authority, dir string, ignore []string, promote bool) error {
	m, err := a.Publish(dir, ignore)
	if err != nil {
		var validationErr errors.ValidationError
		if errors.As(err, &validationErr) {
			return errors.NewFriendlyError("Version %d was already published. "+
				"Promote it with `versync promote` before publishing another version.",
				a.NextVersion())
		}
		return errors.WithContext(err, "publish")
	}
	fmt.Fprintf(stdout, "Published version %d (%d files)\n", m.Version, len(m.Files))

	if !promote {
		return nil
	}

	if _, err := a.TrySetLiveVersion(m.Version); err != nil {
		return errors.WithContext(err, "promote")
	}
	fmt.Fprintf(stdout, "Version %d is live\n", m.Version)
	return nil
}
