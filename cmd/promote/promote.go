package promote

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout        io.Writer = os.Stdout
	openAuthority           = util.OpenAuthority
)

// New creates a new `promote` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "promote [VERSION]",
		Short: "Make a published version live",
		Long: "Make VERSION the live version. It defaults to the version after\n" +
			"the current live version.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			version := 0
			if len(args) == 1 {
				var err error
				version, err = strconv.Atoi(args[0])
				if err != nil || version <= 0 {
					util.HandleFatalError(errors.NewFriendlyError(
						"%q is not a valid version. Versions are positive integers.", args[0]))
					return
				}
			}

			if err := run(version); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(version int) error {
	a, _, err := openAuthority()
	if err != nil {
		return err
	}
	defer a.Close()
	return promote(a, version)
}

// promote makes `version` live. A version of 0 refers to the next version.
func promote(a *authority.Authority, version int) error {
	if version == 0 {
		version = a.NextVersion()
	}

	if !a.HasManifest(version) {
		return errors.NewFriendlyError("Version %d hasn't been published.", version)
	}

	ok, err := a.TrySetLiveVersion(version)
	if err != nil {
		return errors.WithContext(err, "set live version")
	}

	if !ok {
		return errors.NewFriendlyError("Version %d can't be promoted because "+
			"version %d is already live.", version, a.LiveVersion())
	}

	fmt.Fprintf(stdout, "Version %d is live\n", version)
	return nil
}
