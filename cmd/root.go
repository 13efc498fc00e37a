package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/versync/cmd/config"
	"github.com/sidkik/versync/cmd/promote"
	"github.com/sidkik/versync/cmd/publish"
	"github.com/sidkik/versync/cmd/serve"
	"github.com/sidkik/versync/cmd/server"
	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "VERSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "versync",
		Short:        "Publish versions of a directory tree, and sync them to servers",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		promote.New(),
		publish.New(),
		serve.New(),
		server.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
