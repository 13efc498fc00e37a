package target

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/versync/pkg/errors"
)

// Pool holds the Targets for every registered server.
type Pool struct {
	authority  Authority
	onProgress func(Progress)

	lock    sync.Mutex
	targets map[string]*Target
	closed  bool
}

// NewPool creates an empty Pool. `onProgress` is passed to every Target.
func NewPool(authority Authority, onProgress func(Progress)) *Pool {
	return &Pool{
		authority:  authority,
		onProgress: onProgress,
		targets:    map[string]*Target{},
	}
}

// Add starts syncing to a new server.
func (p *Pool) Add(settings Settings, settingsFile *SettingsFile) (*Target, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, errors.New("pool is closed")
	}

	if _, ok := p.targets[settings.Name]; ok {
		return nil, errors.ValidationError{Field: "name",
			Reason: "a server named " + settings.Name + " already exists"}
	}

	t, err := New(Config{
		Settings:     settings,
		Authority:    p.authority,
		SettingsFile: settingsFile,
		OnProgress:   p.onProgress,
	})
	if err != nil {
		return nil, err
	}

	p.targets[settings.Name] = t
	return t, nil
}

// Get returns the Target for the named server.
func (p *Pool) Get(name string) (*Target, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	t, ok := p.targets[name]
	return t, ok
}

// Remove stops syncing to the named server.
func (p *Pool) Remove(name string) error {
	p.lock.Lock()
	t, ok := p.targets[name]
	delete(p.targets, name)
	p.lock.Unlock()

	if !ok {
		return errors.New("no server named %q", name)
	}
	return t.Close()
}

// Targets returns every Target, sorted by name.
func (p *Pool) Targets() []*Target {
	p.lock.Lock()
	defer p.lock.Unlock()

	var targets []*Target
	for _, t := range p.targets {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Name() < targets[j].Name()
	})
	return targets
}

// Close stops every Target. The targets are closed concurrently since each
// one waits for its worker to exit.
func (p *Pool) Close() {
	p.lock.Lock()
	p.closed = true
	targets := p.targets
	p.targets = map[string]*Target{}
	p.lock.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t *Target) {
			defer wg.Done()
			if err := t.Close(); err != nil {
				log.WithError(err).WithField("target", t.Name()).Warn("Failed to close target")
			}
		}(t)
	}
	wg.Wait()
}
