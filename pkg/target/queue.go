package target

import (
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sidkik/versync/pkg/errors"
)

const (
	retryInitialInterval = time.Second
	retryMaxInterval     = time.Minute
)

type queueEntry struct {
	version   int
	notBefore time.Time
}

type failure struct {
	integrityAttempts int
	backoff           *backoff.ExponentialBackOff
}

// syncQueue is a FIFO of versions waiting to be synced. A version is never in
// the queue more than once. Versions that failed to sync are delayed before
// they're retried, and versions whose local content is corrupt are
// quarantined after maxIntegrityAttempts.
type syncQueue struct {
	maxIntegrityAttempts int

	lock        sync.Mutex
	entries     []queueEntry
	failures    map[int]*failure
	quarantined map[int]error
}

func newSyncQueue(maxIntegrityAttempts int) *syncQueue {
	return &syncQueue{
		maxIntegrityAttempts: maxIntegrityAttempts,
		failures:             map[int]*failure{},
		quarantined:          map[int]error{},
	}
}

// enqueue adds `version` to the tail of the queue if it's not already queued.
// Explicitly enqueuing a version gives it a fresh start: it's released from
// quarantine and its retry delay is reset.
func (q *syncQueue) enqueue(version int, now time.Time) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	delete(q.quarantined, version)
	delete(q.failures, version)

	for i, entry := range q.entries {
		if entry.version == version {
			q.entries[i].notBefore = now
			return false
		}
	}
	q.entries = append(q.entries, queueEntry{version: version, notBefore: now})
	return true
}

// pop removes and returns the first version that's due to be synced.
func (q *syncQueue) pop(now time.Time) (int, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for i, entry := range q.entries {
		if !entry.notBefore.After(now) {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return entry.version, true
		}
	}
	return 0, false
}

// requeue puts a version that failed to sync back at the tail of the queue.
// It returns true if the version was quarantined instead.
func (q *syncQueue) requeue(version int, now time.Time, err error) (delay time.Duration, quarantined bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	f, ok := q.failures[version]
	if !ok {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retryInitialInterval
		b.MaxInterval = retryMaxInterval
		f = &failure{backoff: b}
		q.failures[version] = f
	}

	var integrityErr errors.IntegrityError
	if errors.As(err, &integrityErr) {
		f.integrityAttempts++
		if f.integrityAttempts >= q.maxIntegrityAttempts {
			delete(q.failures, version)
			q.quarantined[version] = err
			return 0, true
		}
	}

	for _, entry := range q.entries {
		if entry.version == version {
			// The version was enqueued again while it was being synced, so
			// there's no need to add it a second time.
			return 0, false
		}
	}

	delay = f.backoff.NextBackOff()
	q.entries = append(q.entries, queueEntry{version: version, notBefore: now.Add(delay)})
	return delay, false
}

// succeeded clears the failure history of `version`.
func (q *syncQueue) succeeded(version int) {
	q.lock.Lock()
	defer q.lock.Unlock()
	delete(q.failures, version)
}

func (q *syncQueue) versions() []int {
	q.lock.Lock()
	defer q.lock.Unlock()

	var versions []int
	for _, entry := range q.entries {
		versions = append(versions, entry.version)
	}
	return versions
}

func (q *syncQueue) quarantinedVersions() map[int]error {
	q.lock.Lock()
	defer q.lock.Unlock()

	quarantined := map[int]error{}
	for version, err := range q.quarantined {
		quarantined[version] = err
	}
	return quarantined
}

func sortedVersions(versions map[int]error) []int {
	var sorted []int
	for version := range versions {
		sorted = append(sorted, version)
	}
	sort.Ints(sorted)
	return sorted
}
