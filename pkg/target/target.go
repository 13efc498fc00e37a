// Package target keeps remote servers in sync with the versions published
// by the authority.
//
// Each Target owns a queue of versions and a worker goroutine. The worker
// pops versions off the queue and compares the hash of the local manifest
// with the marker stored on the server. Versions that match are left alone.
// Everything else is uploaded, with the marker written last so that a server
// never advertises a version whose content is incomplete. Failed versions go
// back to the tail of the queue so that newer versions aren't blocked behind
// them.
package target

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/backend"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

const (
	// idleInterval is how long the worker sleeps when there's nothing to
	// sync.
	idleInterval = time.Second

	// noBackendInterval is how long the worker sleeps when the target hasn't
	// been configured yet.
	noBackendInterval = time.Second

	// progressInterval is how often the backend's job count is polled.
	progressInterval = time.Second

	// DefaultMaxIntegrityAttempts is how many times a version whose local
	// content doesn't match its manifest is retried before it's quarantined.
	DefaultMaxIntegrityAttempts = 3
)

// Mocked out for unit testing.
var newBackend = backend.New

// Authority is the subset of *authority.Authority used by targets.
type Authority interface {
	LiveVersion() int
	HasManifest(version int) bool
	Manifest(version int) (*manifest.Manifest, error)
	ManifestHash(version int) (string, error)
	Layout() authority.Layout
	Subscribe(fn func(authority.Event)) (unsubscribe func())
}

// State is the step of the sync algorithm that a target is currently in.
type State int

const (
	Idle State = iota
	Verifying
	Satisfied
	Uploading
	AwaitingCompletion
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Verifying:
		return "verifying"
	case Satisfied:
		return "satisfied"
	case Uploading:
		return "uploading"
	case AwaitingCompletion:
		return "awaiting completion"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Progress is sent whenever the number of outstanding uploads for a target
// changes.
type Progress struct {
	Target        string
	JobsRemaining int
}

// Config is used to create a Target.
type Config struct {
	Settings  Settings
	Authority Authority

	// SettingsFile is updated when the settings are changed with ChangeInfo.
	// It's optional.
	SettingsFile *SettingsFile

	// OnProgress is called from a background goroutine. It's optional.
	OnProgress func(Progress)

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// MaxIntegrityAttempts defaults to DefaultMaxIntegrityAttempts.
	MaxIntegrityAttempts int
}

// Target syncs versions to a single remote server.
type Target struct {
	name         string
	role         Role
	policy       Policy
	authority    Authority
	settingsFile *SettingsFile
	onProgress   func(Progress)
	clock        clockwork.Clock
	log          *log.Entry

	queue *syncQueue

	// settingsLock guards the settings and the backend built from them.
	settingsLock sync.RWMutex
	settings     Settings
	backend      backend.Backend

	stateLock      sync.Mutex
	state          State
	currentVersion int

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	workers     sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// New creates a Target and starts syncing. The live version, and the next
// version if it's been published, are queued immediately.
func New(cfg Config) (*Target, error) {
	t, err := newTarget(cfg)
	if err != nil {
		return nil, err
	}
	t.start()
	return t, nil
}

func newTarget(cfg Config) (*Target, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	if cfg.MaxIntegrityAttempts <= 0 {
		cfg.MaxIntegrityAttempts = DefaultMaxIntegrityAttempts
	}

	if cfg.OnProgress == nil {
		cfg.OnProgress = func(Progress) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Target{
		name:         cfg.Settings.Name,
		role:         cfg.Settings.Role,
		policy:       cfg.Settings.Role.Policy(),
		authority:    cfg.Authority,
		settingsFile: cfg.SettingsFile,
		onProgress:   cfg.OnProgress,
		clock:        cfg.Clock,
		log:          log.WithField("target", cfg.Settings.Name),
		queue:        newSyncQueue(cfg.MaxIntegrityAttempts),
		settings:     cfg.Settings,
		ctx:          ctx,
		cancel:       cancel,
	}

	if cfg.Settings.Configured() {
		b, err := t.newBackend(cfg.Settings)
		if err != nil {
			cancel()
			return nil, errors.WithContext(err, "create backend")
		}
		t.backend = b
	}

	t.unsubscribe = cfg.Authority.Subscribe(t.handleEvent)
	t.enqueueCurrent()
	return t, nil
}

func (t *Target) start() {
	t.workers.Add(2)
	go func() {
		defer t.workers.Done()
		t.run()
	}()
	go func() {
		defer t.workers.Done()
		t.watchProgress()
	}()
}

// Name returns the name of the server.
func (t *Target) Name() string {
	return t.name
}

// Settings returns the current connection settings.
func (t *Target) Settings() Settings {
	t.settingsLock.RLock()
	defer t.settingsLock.RUnlock()
	return t.settings
}

func (t *Target) newBackend(settings Settings) (backend.Backend, error) {
	return newBackend(settings.BackendOptions())
}

func (t *Target) currentBackend() backend.Backend {
	t.settingsLock.RLock()
	defer t.settingsLock.RUnlock()
	return t.backend
}

// EnqueueSyncVersion queues `version` to be synced. It's a no-op if the
// version is already queued. Enqueuing a quarantined version releases it from
// quarantine.
func (t *Target) EnqueueSyncVersion(version int) {
	if version <= 0 {
		return
	}

	if t.queue.enqueue(version, t.clock.Now()) {
		t.log.WithField("version", version).Debug("Queued version")
	}
}

// enqueueCurrent queues the versions that every server should have.
func (t *Target) enqueueCurrent() {
	live := t.authority.LiveVersion()
	t.EnqueueSyncVersion(live)
	if t.authority.HasManifest(live + 1) {
		t.EnqueueSyncVersion(live + 1)
	}
}

func (t *Target) handleEvent(event authority.Event) {
	switch event.Kind {
	case authority.LiveVersionChanged, authority.NextVersionCreated:
		t.EnqueueSyncVersion(event.Version)
	}
}

// ChangeInfo replaces the connection settings of the target. The old backend
// is closed, and the current versions are queued so that they're verified
// against the new server.
func (t *Target) ChangeInfo(host, user, password string, kind backend.Kind,
	downloadKind backend.DownloadKind, downloadHost string) error {

	settings := t.Settings()
	settings.Host = host
	settings.User = user
	settings.Password = password
	settings.Backend = kind
	settings.DownloadKind = downloadKind
	settings.DownloadHost = downloadHost

	if host == "" {
		return errors.ValidationError{Field: "host", Reason: "must not be empty"}
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	b, err := t.newBackend(settings)
	if err != nil {
		return errors.WithContext(err, "create backend")
	}

	if t.settingsFile != nil {
		if err := t.settingsFile.Save(settings); err != nil {
			b.Close()
			return errors.WithContext(err, "save settings")
		}
	}

	t.settingsLock.Lock()
	old := t.backend
	t.backend = b
	t.settings = settings
	t.settingsLock.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			t.log.WithError(err).Warn("Failed to close old backend")
		}
	}

	t.log.WithField("host", host).Info("Changed server settings")
	t.enqueueCurrent()
	return nil
}

// TestConnection checks that the target's server is reachable.
func (t *Target) TestConnection(ctx context.Context) error {
	b := t.currentBackend()
	if b == nil {
		return errors.NewFriendlyError("Server %q hasn't been configured.", t.name)
	}
	return b.TestConnection(ctx)
}

// Close stops the worker, and closes the backend. It's safe to call Close
// multiple times. Uploads that are in progress aren't cancelled.
func (t *Target) Close() error {
	t.closeOnce.Do(func() {
		t.unsubscribe()
		t.cancel()
		t.workers.Wait()

		t.settingsLock.Lock()
		b := t.backend
		t.backend = nil
		t.settingsLock.Unlock()

		if b != nil {
			t.closeErr = b.Close()
		}
	})
	return t.closeErr
}

func (t *Target) run() {
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		sleep := t.runOnce(t.ctx)
		if sleep == 0 {
			continue
		}

		select {
		case <-t.ctx.Done():
			return
		case <-t.clock.After(sleep):
		}
	}
}

// runOnce syncs at most one version. It returns how long the worker should
// sleep before the next iteration.
func (t *Target) runOnce(ctx context.Context) time.Duration {
	b := t.currentBackend()
	if b == nil {
		t.setState(Idle, 0)
		return noBackendInterval
	}

	version, ok := t.queue.pop(t.clock.Now())
	if !ok {
		t.setState(Idle, 0)
		return idleInterval
	}

	err := t.verifyAndSync(ctx, b, version)
	t.setState(Idle, 0)
	t.handleResult(ctx, version, err)
	return 0
}

func (t *Target) handleResult(ctx context.Context, version int, err error) {
	logger := t.log.WithField("version", version)
	if err == nil {
		t.queue.succeeded(version)
		return
	}

	delay, quarantined := t.queue.requeue(version, t.clock.Now(), err)
	switch {
	case ctx.Err() != nil:
		logger.WithError(err).Debug("Sync interrupted by shutdown")
	case quarantined:
		logger.WithError(err).Error("Local content for this version is corrupt. " +
			"It won't be retried until it's queued again.")
	default:
		logger.WithError(err).WithField("retryIn", delay).Warn("Sync failed. Will retry.")
	}
}

func (t *Target) watchProgress() {
	ticker := t.clock.NewTicker(progressInterval)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.Chan():
			last = t.pollProgress(last)
		}
	}
}

// pollProgress sends a Progress notification if the number of outstanding
// uploads differs from `last`, and returns the current number.
func (t *Target) pollProgress(last int) int {
	b := t.currentBackend()
	if b == nil {
		return last
	}

	remaining := b.JobsRemaining()
	if remaining != last {
		t.onProgress(Progress{Target: t.name, JobsRemaining: remaining})
	}
	return remaining
}

func (t *Target) setState(state State, version int) {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	t.state = state
	t.currentVersion = version
}

// State returns the current step of the sync algorithm, and the version
// being synced.
func (t *Target) State() (State, int) {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	return t.state, t.currentVersion
}

// Status is a snapshot of a Target.
type Status struct {
	Name           string
	Role           Role
	Configured     bool
	State          State
	CurrentVersion int
	Queued         []int
	Quarantined    []int
	JobsRemaining  int
}

// Status returns a snapshot of the target's state.
func (t *Target) Status() Status {
	state, version := t.State()
	status := Status{
		Name:           t.name,
		Role:           t.role,
		State:          state,
		CurrentVersion: version,
		Queued:         t.queue.versions(),
		Quarantined:    sortedVersions(t.queue.quarantinedVersions()),
	}

	if b := t.currentBackend(); b != nil {
		status.Configured = true
		status.JobsRemaining = b.JobsRemaining()
	}
	return status
}
