package authority

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

func TestFollow(t *testing.T) {
	changes := make(chan struct{})
	var watchedRoot string
	var watchedExcept []string
	origWatchDir := watchDir
	defer func() { watchDir = origWatchDir }()
	watchDir = func(_ context.Context, root string, except []string) (<-chan struct{}, error) {
		watchedRoot = root
		watchedExcept = except
		return changes, nil
	}

	a, dir := newTestAuthority(t)
	events := make(chan Event, 8)
	a.Subscribe(func(e Event) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	done := make(chan struct{})
	go func() {
		a.Follow(ctx, clock)
		close(done)
	}()

	other, err := New(dir)
	require.NoError(t, err)

	// Changes noticed by the watcher.
	require.NoError(t, other.SetNextVersion(&manifest.Manifest{Version: 1}))
	changes <- struct{}{}
	assert.Equal(t, Event{Kind: NextVersionCreated, Version: 1}, receive(t, events))
	assert.Equal(t, dir, watchedRoot)
	assert.Equal(t, []string{"content"}, watchedExcept)

	// Changes noticed by polling.
	ok, err := other.TrySetLiveVersion(1)
	require.NoError(t, err)
	require.True(t, ok)
	clock.BlockUntil(1)
	clock.Advance(pollInterval)
	assert.Equal(t, Event{Kind: LiveVersionChanged, Version: 1}, receive(t, events))

	cancel()
	<-done
}

func TestFollowWithoutWatcher(t *testing.T) {
	origWatchDir := watchDir
	defer func() { watchDir = origWatchDir }()
	watchDir = func(context.Context, string, []string) (<-chan struct{}, error) {
		return nil, errors.New("too many open files")
	}

	a, dir := newTestAuthority(t)
	events := make(chan Event, 8)
	a.Subscribe(func(e Event) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	go a.Follow(ctx, clock)

	other, err := New(dir)
	require.NoError(t, err)
	ok, err := other.TrySetLiveVersion(2)
	require.NoError(t, err)
	require.True(t, ok)

	clock.BlockUntil(1)
	clock.Advance(pollInterval)
	assert.Equal(t, Event{Kind: LiveVersionChanged, Version: 2}, receive(t, events))
}

func receive(t *testing.T, events chan Event) Event {
	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}
