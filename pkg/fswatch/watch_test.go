package fswatch

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/errors"
)

func TestGetDirsToWatch(t *testing.T) {
	excludeContent := func(path string) bool {
		return strings.HasSuffix(path, "/content")
	}

	tests := []struct {
		name     string
		dirs     []string
		files    []string
		excluded func(string) bool
		expPaths []string
	}{
		{
			name:  "All directories",
			dirs:  []string{"/data/versions/v00000001", "/data/versions/v00000002"},
			files: []string{"/data/settings", "/data/versions/v00000001/manifest"},
			excluded: func(string) bool {
				return false
			},
			expPaths: []string{"/data", "/data/versions",
				"/data/versions/v00000001", "/data/versions/v00000002"},
		},
		{
			name: "Skip excluded directories",
			dirs: []string{"/data/versions/v00000001/content/assets",
				"/data/versions/v00000002/content"},
			files:    []string{"/data/versions/v00000001/content/assets/app.js"},
			excluded: excludeContent,
			expPaths: []string{"/data", "/data/versions",
				"/data/versions/v00000001", "/data/versions/v00000002"},
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		for _, dir := range test.dirs {
			assert.NoError(t, fs.MkdirAll(dir, 0755))
		}
		for _, file := range test.files {
			assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
		}

		paths, err := getDirsToWatch("/data", test.excluded)
		assert.NoError(t, err)

		// Sort for consistency.
		sort.Strings(test.expPaths)
		sort.Strings(paths)
		assert.Equal(t, test.expPaths, paths, test.name)
	}
}

func TestGetDirsToWatchErrors(t *testing.T) {
	fs = afero.NewMemMapFs()
	none := func(string) bool { return false }

	_, err := getDirsToWatch("/missing", none)
	assert.Equal(t, errors.FileNotFound{Path: "/missing"}, err)

	require.NoError(t, afero.WriteFile(fs, "/file", nil, 0644))
	_, err = getDirsToWatch("/file", none)
	assert.Error(t, err)
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan fsnotify.Event, 1024)
	addEvents := func(num int, op fsnotify.Op) {
		for i := 0; i < num; i++ {
			updates <- fsnotify.Event{Name: "/data/versions/v00000001", Op: op}
		}
	}

	var lock sync.Mutex
	var created []string
	onCreate := func(path string) {
		lock.Lock()
		defer lock.Unlock()
		created = append(created, path)
	}

	// Seed with events.
	numUpdates := 100
	addEvents(numUpdates, fsnotify.Write)
	combined := combineUpdates(updates, onCreate)

	// Assert that the events are being combined.
	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)

	// Created paths are passed on.
	addEvents(1, fsnotify.Create)
	<-combined

	lock.Lock()
	assert.Equal(t, []string{"/data/versions/v00000001"}, created)
	lock.Unlock()

	// The combined channel is closed along with the updates.
	close(updates)
	for range combined {
	}
}

func countEvents(c chan struct{}) (n int) {
	// Block until the first event.
	<-c
	n++

	// Count the number of events until there hasn't been any new events in 500
	// milliseconds.
	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
