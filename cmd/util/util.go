package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
)

// Mocked for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// HandleFatalError prints the error and exits. If the error has a friendly
// message, only that message is printed. The full error is still logged at
// Debug level.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs the panic along with the stack trace before exiting. It
// must be deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Error("Unexpected panic")
		fmt.Fprintf(stderr, "versync crashed: %v\n", r)
		exit(2)
	}
}

// OpenAuthority opens the authority for the data directory configured in
// the user config.
func OpenAuthority() (*authority.Authority, config.User, error) {
	userConfig, err := config.ParseUser()
	if err != nil {
		return nil, config.User{}, errors.WithContext(err, "parse user config")
	}

	a, err := authority.New(userConfig.DataDir)
	if err != nil {
		return nil, config.User{}, errors.WithContext(err, "open data directory")
	}
	return a, userConfig, nil
}
