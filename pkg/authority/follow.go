package authority

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/versync/pkg/fswatch"
)

// pollInterval is how often Follow reloads the authority regardless of
// whether the file watcher noticed any changes.
const pollInterval = 15 * time.Second

// Mocked out for unit testing.
var watchDir = fswatch.Watch

// Follow reloads the authority whenever another process publishes or
// promotes a version in the same data directory. Changes are detected with
// a file watcher, and by polling in case the watcher misses them. It blocks
// until `ctx` is cancelled.
func (a *Authority) Follow(ctx context.Context, clock clockwork.Clock) {
	// Content trees are written before their manifest, so watching them
	// would only add noise.
	changes, err := watchDir(ctx, a.layout.Root, []string{contentDir})
	if err != nil {
		log.WithError(err).Warn("Failed to watch data directory. " +
			"Changes by other processes will be picked up by polling.")
	}

	ticker := clock.NewTicker(pollInterval)
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
		}

		if err := a.Reload(); err != nil {
			log.WithError(err).Warn("Failed to reload authority")
		}
	}
}
