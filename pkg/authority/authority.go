// Package authority tracks which version is live, and where each version's
// manifest and content live on disk. There is a single Authority per data
// directory, and it's the only writer of the live version.
package authority

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

// EventKind is the type of change described by an Event.
type EventKind int

const (
	// LiveVersionChanged is raised when the live version increases.
	LiveVersionChanged EventKind = iota

	// NextVersionCreated is raised when the manifest for live+1 is written.
	NextVersionCreated
)

func (kind EventKind) String() string {
	switch kind {
	case LiveVersionChanged:
		return "LiveVersionChanged"
	case NextVersionCreated:
		return "NextVersionCreated"
	}
	return fmt.Sprintf("EventKind(%d)", int(kind))
}

// Event describes a change to the authority's state.
type Event struct {
	Kind    EventKind
	Version int
}

// Authority owns the live version.
type Authority struct {
	layout Layout
	store  *settingsStore

	lock sync.Mutex
	live int

	// announcedNext is the most recent version for which a
	// NextVersionCreated event was raised, or already existed at startup.
	announcedNext int

	subsLock  sync.Mutex
	subs      map[int]func(Event)
	nextSubID int
}

// New loads the authority state stored in `dataDir`, creating the directory
// if necessary.
func New(dataDir string) (*Authority, error) {
	layout := Layout{Root: dataDir}
	if err := fs.MkdirAll(layout.VersionsDir(), 0755); err != nil {
		return nil, errors.IOError{Path: layout.VersionsDir(), Err: errors.WithContext(err, "create")}
	}

	a := &Authority{
		layout: layout,
		store:  newSettingsStore(layout.SettingsPath()),
		subs:   map[int]func(Event){},
	}

	st, err := a.store.load()
	if err != nil {
		return nil, errors.WithContext(err, "load settings")
	}
	a.live = st.LiveVersion

	if a.HasManifest(a.live + 1) {
		a.announcedNext = a.live + 1
	}

	if err := a.syncPointer(); err != nil {
		return nil, errors.WithContext(err, "write live version pointer")
	}
	return a, nil
}

// Layout returns the paths used by the authority.
func (a *Authority) Layout() Layout {
	return a.layout
}

// LiveVersion returns the version currently advertised to clients. Zero means
// that no version has been made live yet.
func (a *Authority) LiveVersion() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.live
}

// NextVersion returns the version number that the next published version
// will use.
func (a *Authority) NextVersion() int {
	return a.LiveVersion() + 1
}

// TrySetLiveVersion makes `version` live. It returns false without changing
// anything if `version` isn't newer than the current live version, including
// when another process sharing the data directory already made a version at
// least as new live. In that case the newer version is adopted.
func (a *Authority) TrySetLiveVersion(version int) (bool, error) {
	a.lock.Lock()
	if version <= a.live {
		a.lock.Unlock()
		return false, nil
	}

	live, advanced, err := a.store.advance(version, a.updatePointer)
	if err != nil {
		a.lock.Unlock()
		return false, errors.WithContext(err, "persist live version")
	}

	// When another process got there first, `live` is at least `version`.
	a.live = live
	a.lock.Unlock()

	if !advanced {
		log.WithFields(log.Fields{
			"requested": version,
			"live":      live,
		}).Info("A newer version was made live by another process")
		a.notify(Event{Kind: LiveVersionChanged, Version: live})
		return false, nil
	}

	a.notify(Event{Kind: LiveVersionChanged, Version: version})
	return true, nil
}

// SetNextVersion stores the manifest for the next version. The manifest must
// be for live+1, and that version must not already have a manifest.
func (a *Authority) SetNextVersion(m *manifest.Manifest) error {
	a.lock.Lock()
	next := a.live + 1
	if m.Version != next {
		a.lock.Unlock()
		return errors.ValidationError{
			Field:  "version",
			Reason: fmt.Sprintf("expected next version %d, got %d", next, m.Version),
		}
	}

	if a.HasManifest(next) {
		a.lock.Unlock()
		return errors.ValidationError{
			Field:  "version",
			Reason: fmt.Sprintf("version %d was already published", next),
		}
	}

	if err := m.Write(a.layout.ManifestPath(next)); err != nil {
		a.lock.Unlock()
		return errors.WithContext(err, "write manifest")
	}
	a.announcedNext = next
	a.lock.Unlock()

	a.notify(Event{Kind: NextVersionCreated, Version: next})
	return nil
}

// Publish copies the tree at `srcDir` into the content directory of the next
// version, and creates its manifest.
func (a *Authority) Publish(srcDir string, ignore []string) (*manifest.Manifest, error) {
	next := a.NextVersion()
	if a.HasManifest(next) {
		return nil, errors.ValidationError{
			Field:  "version",
			Reason: fmt.Sprintf("version %d was already published", next),
		}
	}

	contentDir := a.layout.ContentDir(next)
	if err := fs.RemoveAll(contentDir); err != nil {
		return nil, errors.IOError{Path: contentDir, Err: errors.WithContext(err, "clear")}
	}

	if err := copyTree(srcDir, contentDir); err != nil {
		return nil, errors.WithContext(err, "copy content")
	}

	m, err := manifest.Create(next, contentDir, ignore)
	if err != nil {
		return nil, errors.WithContext(err, "create manifest")
	}

	if err := a.SetNextVersion(m); err != nil {
		return nil, err
	}
	return m, nil
}

// HasManifest returns whether a manifest exists locally for `version`.
func (a *Authority) HasManifest(version int) bool {
	exists, err := afero.Exists(fs, a.layout.ManifestPath(version))
	return err == nil && exists
}

// Manifest returns the local manifest for `version`, or nil if there isn't
// one.
func (a *Authority) Manifest(version int) (*manifest.Manifest, error) {
	m, err := manifest.CreateFromFile(a.layout.ManifestPath(version))
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ManifestHash returns the stored hash of the manifest for `version`.
func (a *Authority) ManifestHash(version int) (string, error) {
	return manifest.ReadHash(a.layout.ManifestPath(version))
}

// Subscribe registers `fn` to be called after every state change. The
// returned function removes the subscription.
func (a *Authority) Subscribe(fn func(Event)) (unsubscribe func()) {
	a.subsLock.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn
	a.subsLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subsLock.Lock()
			delete(a.subs, id)
			a.subsLock.Unlock()
		})
	}
}

func (a *Authority) notify(event Event) {
	a.subsLock.Lock()
	var subs []func(Event)
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.subsLock.Unlock()

	log.WithFields(log.Fields{
		"event":   event.Kind,
		"version": event.Version,
	}).Debug("Authority state changed")
	for _, fn := range subs {
		fn(event)
	}
}

// Reload picks up changes made by other processes sharing the data
// directory, and raises the events for them.
func (a *Authority) Reload() error {
	st, err := a.store.load()
	if err != nil {
		return errors.WithContext(err, "load settings")
	}

	var events []Event
	a.lock.Lock()
	if st.LiveVersion > a.live {
		a.live = st.LiveVersion
		events = append(events, Event{Kind: LiveVersionChanged, Version: a.live})
	} else if st.LiveVersion < a.live {
		log.WithFields(log.Fields{
			"persisted": st.LiveVersion,
			"live":      a.live,
		}).Warn("Ignoring persisted live version older than the current one")
	}

	next := a.live + 1
	if next != a.announcedNext && a.HasManifest(next) {
		a.announcedNext = next
		events = append(events, Event{Kind: NextVersionCreated, Version: next})
	}
	a.lock.Unlock()

	for _, event := range events {
		a.notify(event)
	}
	return nil
}

// Close persists the current state. The persisted live version is never
// lowered, so a version made live by another process survives. The Authority
// shouldn't be used after it's closed.
func (a *Authority) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, _, err := a.store.advance(a.live, a.updatePointer); err != nil {
		return errors.WithContext(err, "persist settings")
	}
	return nil
}

// syncPointer rewrites the pointer file if it doesn't match the live version.
func (a *Authority) syncPointer() error {
	contents, err := afero.ReadFile(fs, a.layout.PointerPath())
	if err == nil && strings.TrimSpace(string(contents)) == manifest.VersionString(a.live) {
		return nil
	}
	return a.writePointer(a.live)
}

// updatePointer runs while the settings file lock is held.
func (a *Authority) updatePointer(version int) {
	if err := a.writePointer(version); err != nil {
		log.WithError(err).WithField("version", version).Error(
			"Failed to update the live version pointer. It will be rewritten on restart.")
	}
}

func (a *Authority) writePointer(version int) error {
	contents := manifest.VersionString(version) + "\n"
	return manifest.WriteAtomic(fs, a.layout.PointerPath(), []byte(contents))
}

func copyTree(srcDir, dstDir string) error {
	return afero.Walk(fs, srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.IOError{Path: path, Err: errors.WithContext(err, "walk")}
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return errors.IOError{Path: path, Err: err}
		}
		dst := filepath.Join(dstDir, relPath)

		switch {
		case fi.IsDir():
			if err := fs.MkdirAll(dst, 0755); err != nil {
				return errors.IOError{Path: dst, Err: errors.WithContext(err, "mkdir")}
			}
			return nil
		case !fi.Mode().IsRegular():
			log.WithField("path", path).Warn("Skipping non-regular file")
			return nil
		}
		return copyFile(path, dst, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.IOError{Path: src, Err: errors.WithContext(err, "open")}
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.IOError{Path: dst, Err: errors.WithContext(err, "create")}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.IOError{Path: dst, Err: errors.WithContext(err, "copy")}
	}

	if err := out.Close(); err != nil {
		return errors.IOError{Path: dst, Err: errors.WithContext(err, "close")}
	}
	return nil
}
