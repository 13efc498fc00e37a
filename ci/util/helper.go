package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sidkik/versync/pkg/errors"
)

// TestHelper runs the versync binary against an isolated home directory.
type TestHelper struct {
	Home       string
	DataDir    string
	ServersDir string
}

// NewTestHelper creates a TestHelper whose user config points at
// directories within `home`.
func NewTestHelper(home string) (*TestHelper, error) {
	helper := &TestHelper{
		Home:       home,
		DataDir:    filepath.Join(home, "data"),
		ServersDir: filepath.Join(home, "servers"),
	}

	if _, err := helper.Run(context.Background(), "config",
		"--data-dir", helper.DataDir, "--servers-dir", helper.ServersDir); err != nil {
		return nil, errors.WithContext(err, "write user config")
	}
	return helper, nil
}

func (helper *TestHelper) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "versync", args...)
	cmd.Env = append(os.Environ(), "HOME="+helper.Home, "VERSYNC_LOG_VERBOSE=true")
	return cmd
}

// Run runs the given versync command, and returns its stdout.
func (helper *TestHelper) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := helper.command(ctx, args...)
	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("versync %s: %s: stderr: %s",
			strings.Join(args, " "), err, stderr)
	}
	return out, nil
}

// Start starts the given versync command. It returns a channel for
// obtaining any errors after starting the command, and any errors from
// starting the command. The command is stopped with SIGTERM when `ctx` is
// cancelled.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (chan error, error) {
	cmd := helper.command(context.Background(), args...)
	stderr := bytes.NewBuffer(nil)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				errChan <- errors.WithContext(err, "kill")
				return
			}
			if err := <-waitErr; err != nil {
				errChan <- fmt.Errorf("exited uncleanly (%s): stderr: %s", err, stderr)
			}
		case err := <-waitErr:
			errChan <- fmt.Errorf("crashed (%s): stderr: %s", err, stderr)
		}
	}()
	return errChan, nil
}

// TestWithRetry runs `test` with an exponential backoff until it passes, or
// `ctx` is cancelled.
func TestWithRetry(ctx context.Context, test func() bool) bool {
	maxSleepTime := 5 * time.Second
	sleepTime := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		}

		if test() {
			return true
		}
	}
}
