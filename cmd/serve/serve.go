package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/versync/cmd/util"
	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/fswatch"
	"github.com/sidkik/versync/pkg/target"
)

// reconcileInterval is how often the server settings are re-read regardless
// of whether the file watcher noticed any changes.
const reconcileInterval = 15 * time.Second

// Mocked for unit testing.
var (
	openAuthority = util.OpenAuthority
	watchDir      = fswatch.Watch
)

// New creates a new `serve` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep every registered server in sync",
		Long: "Sync the live version, and the next version once it's published,\n" +
			"to every registered server. Runs until interrupted.\n\n" +
			"Versions published or promoted by other versync processes, and\n" +
			"changes to the server settings, are picked up automatically.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, clockwork.NewRealClock()); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context, clock clockwork.Clock) error {
	a, userConfig, err := openAuthority()
	if err != nil {
		return err
	}

	if err := userConfig.CreateServersDir(); err != nil {
		return err
	}

	pool := target.NewPool(a, logProgress)
	s := &server{userConfig: userConfig, pool: pool}
	s.reconcile()

	log.WithFields(log.Fields{
		"dataDir":     userConfig.DataDir,
		"liveVersion": a.LiveVersion(),
		"servers":     len(pool.Targets()),
	}).Info("Started syncing")

	followDone := make(chan struct{})
	go func() {
		a.Follow(ctx, clock)
		close(followDone)
	}()

	s.watch(ctx, clock)

	log.Info("Shutting down")
	<-followDone
	pool.Close()
	return closeAuthority(a)
}

func closeAuthority(a *authority.Authority) error {
	if err := a.Close(); err != nil {
		return errors.WithContext(err, "save authority state")
	}
	return nil
}

type server struct {
	userConfig config.User
	pool       *target.Pool
}

// watch reconciles the pool whenever the server settings change. It blocks
// until `ctx` is cancelled.
func (s *server) watch(ctx context.Context, clock clockwork.Clock) {
	changes, err := watchDir(ctx, s.userConfig.ServersDir, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to watch servers directory. " +
			"Changes to server settings will be picked up by polling.")
	}

	ticker := clock.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
		case <-ticker.Chan():
			s.logStatus()
		}
		s.reconcile()
	}
}

// reconcile makes the pool match the server settings files. New servers are
// added, removed servers are stopped, and servers whose settings changed
// are updated in place.
func (s *server) reconcile() {
	names, err := s.userConfig.ListServers()
	if err != nil {
		log.WithError(err).Warn("Failed to list servers")
		return
	}

	onDisk := map[string]struct{}{}
	for _, name := range names {
		onDisk[name] = struct{}{}

		logger := log.WithField("target", name)
		settingsFile := target.NewSettingsFile(s.userConfig.ServerSettingsPath(name))
		settings, err := settingsFile.Load()
		if err != nil {
			logger.WithError(err).Warn("Failed to load server settings")
			continue
		}

		if err := s.apply(settings, settingsFile); err != nil {
			logger.WithError(err).Warn("Failed to apply server settings")
		}
	}

	for _, t := range s.pool.Targets() {
		if _, ok := onDisk[t.Name()]; ok {
			continue
		}

		if err := s.pool.Remove(t.Name()); err != nil {
			log.WithError(err).WithField("target", t.Name()).Warn("Failed to remove server")
			continue
		}
		log.WithField("target", t.Name()).Info("Stopped syncing to removed server")
	}
}

func (s *server) apply(settings target.Settings, settingsFile *target.SettingsFile) error {
	t, ok := s.pool.Get(settings.Name)
	if !ok {
		if _, err := s.pool.Add(settings, settingsFile); err != nil {
			return errors.WithContext(err, "add")
		}
		log.WithFields(log.Fields{
			"target":     settings.Name,
			"role":       settings.Role,
			"configured": settings.Configured(),
		}).Info("Started syncing to server")
		return nil
	}

	current := t.Settings()
	if current == settings {
		return nil
	}

	// Connection changes are applied in place. Anything else requires a new
	// target.
	if current.Role == settings.Role && settings.Configured() {
		return t.ChangeInfo(settings.Host, settings.User, settings.Password,
			settings.Backend, settings.DownloadKind, settings.DownloadHost)
	}

	if err := s.pool.Remove(settings.Name); err != nil {
		return errors.WithContext(err, "remove")
	}
	if _, err := s.pool.Add(settings, settingsFile); err != nil {
		return errors.WithContext(err, "add")
	}
	log.WithField("target", settings.Name).Info("Restarted syncing to server")
	return nil
}

func (s *server) logStatus() {
	for _, t := range s.pool.Targets() {
		status := t.Status()
		log.WithFields(log.Fields{
			"target":        status.Name,
			"state":         status.State,
			"version":       status.CurrentVersion,
			"queued":        status.Queued,
			"quarantined":   status.Quarantined,
			"jobsRemaining": status.JobsRemaining,
		}).Debug("Server status")
	}
}

func logProgress(p target.Progress) {
	log.WithFields(log.Fields{
		"target":        p.Target,
		"jobsRemaining": p.JobsRemaining,
	}).Info("Upload progress")
}
