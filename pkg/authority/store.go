package authority

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

const liveVersionKey = "LIVEVERSION"

var fs = afero.NewOsFs()

type settings struct {
	LiveVersion int
}

// settingsStore persists the authority's settings as KEY=VALUE lines.
// The in-process lock serializes goroutines, and the file lock serializes
// separate versync processes that share a data directory.
type settingsStore struct {
	path     string
	lock     sync.Mutex
	fileLock *flock.Flock
}

func newSettingsStore(path string) *settingsStore {
	return &settingsStore{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
}

func (s *settingsStore) load() (settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.fileLock.RLock(); err != nil {
		return settings{}, errors.IOError{Path: s.fileLock.Path(), Err: errors.WithContext(err, "lock")}
	}
	defer s.fileLock.Unlock()
	return s.read()
}

// read must be called with the file lock held.
func (s *settingsStore) read() (settings, error) {
	contents, err := afero.ReadFile(fs, s.path)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return settings{}, nil
		}
		return settings{}, errors.IOError{Path: s.path, Err: errors.WithContext(err, "read")}
	}
	return parseSettings(s.path, contents), nil
}

// parseSettings never fails. Lines that can't be understood are logged and
// skipped so that a damaged settings file doesn't prevent startup.
func parseSettings(path string, contents []byte) settings {
	var st settings
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		logger := log.WithFields(log.Fields{"path": path, "line": lineNum})
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			logger.Warn("Ignoring malformed settings line")
			continue
		}

		key, value := strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:])
		switch key {
		case liveVersionKey:
			version, err := strconv.Atoi(value)
			if err != nil || version < 0 {
				logger.WithField("value", value).Warn("Ignoring unparsable live version")
				continue
			}
			st.LiveVersion = version
		default:
			logger.WithField("key", key).Warn("Ignoring unrecognized settings key")
		}
	}
	return st
}

// advance persists `version` as the live version if it's newer than the
// persisted one. Other processes may have advanced the live version since it
// was last loaded, so the persisted value is re-read under the file lock and
// never lowered. It returns the live version after the call, and whether it
// was changed. `onAdvance` runs while the lock is still held.
func (s *settingsStore) advance(version int, onAdvance func(live int)) (int, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return 0, false, errors.IOError{Path: s.fileLock.Path(), Err: errors.WithContext(err, "lock")}
	}
	defer s.fileLock.Unlock()

	current, err := s.read()
	if err != nil {
		return 0, false, err
	}

	if version <= current.LiveVersion {
		return current.LiveVersion, false, nil
	}

	contents := fmt.Sprintf("%s=%d\n", liveVersionKey, version)
	if err := manifest.WriteAtomic(fs, s.path, []byte(contents)); err != nil {
		return 0, false, errors.IOError{Path: s.path, Err: err}
	}

	if onAdvance != nil {
		onAdvance(version)
	}
	return version, true, nil
}
