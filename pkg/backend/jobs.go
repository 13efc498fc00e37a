package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sidkik/versync/pkg/errors"
)

type uploadFunc func(ctx context.Context, localPath, remotePath string) error

// jobTracker runs asynchronous uploads with bounded parallelism, and tracks
// how many are outstanding. It's embedded by each Backend implementation.
type jobTracker struct {
	upload uploadFunc
	sem    *semaphore.Weighted

	// closeCtx is cancelled when the backend is closed. Uploads that haven't
	// started yet are abandoned, but uploads in progress are left to finish.
	closeCtx context.Context
	close    context.CancelFunc

	skipIfExists atomic.Bool

	lock      sync.Mutex
	remaining int
	errs      []error

	// idle is closed whenever remaining is zero.
	idle chan struct{}
}

func newJobTracker(parallelism int, skipIfExists bool, upload uploadFunc) *jobTracker {
	closeCtx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	jt := &jobTracker{
		upload:   upload,
		sem:      semaphore.NewWeighted(int64(parallelism)),
		closeCtx: closeCtx,
		close:    cancel,
		idle:     idle,
	}
	jt.skipIfExists.Store(skipIfExists)
	return jt
}

func (jt *jobTracker) UploadAsync(localPath, remotePath string) {
	jt.lock.Lock()
	if jt.remaining == 0 {
		jt.idle = make(chan struct{})
	}
	jt.remaining++
	jt.lock.Unlock()

	go func() {
		err := jt.sem.Acquire(jt.closeCtx, 1)
		if err != nil {
			err = errors.WithContext(err, "backend closed")
		} else {
			err = jt.upload(context.Background(), localPath, remotePath)
			jt.sem.Release(1)
		}
		jt.finish(localPath, remotePath, err)
	}()
}

func (jt *jobTracker) finish(localPath, remotePath string, err error) {
	jt.lock.Lock()
	defer jt.lock.Unlock()

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"local":  localPath,
			"remote": remotePath,
		}).Debug("Upload failed")
		jt.errs = append(jt.errs, err)
	}

	jt.remaining--
	if jt.remaining == 0 {
		close(jt.idle)
	}
}

func (jt *jobTracker) Wait(ctx context.Context) error {
	jt.lock.Lock()
	idle := jt.idle
	jt.lock.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	jt.lock.Lock()
	errs := jt.errs
	jt.errs = nil
	jt.lock.Unlock()

	if len(errs) == 0 {
		return nil
	}
	return errors.WithContext(errs[0], fmt.Sprintf("%d upload(s) failed", len(errs)))
}

func (jt *jobTracker) JobsRemaining() int {
	jt.lock.Lock()
	defer jt.lock.Unlock()
	return jt.remaining
}

func (jt *jobTracker) IsBusy() bool {
	return jt.JobsRemaining() != 0
}

func (jt *jobTracker) SkipIfExists() bool {
	return jt.skipIfExists.Load()
}

func (jt *jobTracker) SetSkipIfExists(skip bool) {
	jt.skipIfExists.Store(skip)
}

func (jt *jobTracker) Close() error {
	jt.close()
	return nil
}
