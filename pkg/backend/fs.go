package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

// Variables mocked for unit testing.
var (
	localFs        = afero.NewOsFs()
	newRemoteFsFor = func(root string) afero.Fs {
		return afero.NewBasePathFs(afero.NewOsFs(), root)
	}
)

// probePath is written and removed by TestConnection to check that the root
// is writable.
const probePath = ".versync-probe"

type filesystemBackend struct {
	*jobTracker
	remote afero.Fs
}

func newFilesystemBackend(opts Options) (Backend, error) {
	b := &filesystemBackend{remote: newRemoteFsFor(opts.Host)}
	b.jobTracker = newJobTracker(opts.Parallelism, opts.SkipIfExists, b.upload)
	return b, nil
}

func (b *filesystemBackend) upload(_ context.Context, localPath, remotePath string) error {
	dst := filepath.FromSlash(remotePath)
	if b.SkipIfExists() {
		exists, err := afero.Exists(b.remote, dst)
		if err != nil {
			return errors.BackendError{Op: "stat", Path: remotePath, Err: err}
		}
		if exists {
			return nil
		}
	}

	src, err := localFs.Open(localPath)
	if err != nil {
		return errors.IOError{Path: localPath, Err: errors.WithContext(err, "open")}
	}
	defer src.Close()

	if err := b.remote.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.BackendError{Op: "mkdir", Path: remotePath, Err: err}
	}

	// Copy to a temporary file so that a partial upload never appears at the
	// final path.
	partial := dst + ".partial"
	f, err := b.remote.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.BackendError{Op: "create", Path: remotePath, Err: err}
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		b.remote.Remove(partial)
		return errors.BackendError{Op: "write", Path: remotePath, Err: err}
	}

	if err := f.Close(); err != nil {
		b.remote.Remove(partial)
		return errors.BackendError{Op: "write", Path: remotePath, Err: err}
	}

	if err := b.remote.Rename(partial, dst); err != nil {
		b.remote.Remove(partial)
		return errors.BackendError{Op: "rename", Path: remotePath, Err: err}
	}
	return nil
}

func (b *filesystemBackend) DownloadString(_ context.Context, remotePath string) (string, bool, error) {
	contents, err := afero.ReadFile(b.remote, filepath.FromSlash(remotePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, errors.BackendError{Op: "download", Path: remotePath, Err: err}
	}
	return string(contents), true, nil
}

func (b *filesystemBackend) DeleteDirectory(_ context.Context, remotePath string) error {
	if err := b.remote.RemoveAll(filepath.FromSlash(remotePath)); err != nil {
		return errors.BackendError{Op: "delete", Path: remotePath, Err: err}
	}
	return nil
}

func (b *filesystemBackend) TestConnection(_ context.Context) error {
	if err := afero.WriteFile(b.remote, probePath, []byte("ok"), 0644); err != nil {
		return errors.BackendError{Op: "write probe", Err: err}
	}

	if err := b.remote.Remove(probePath); err != nil {
		return errors.BackendError{Op: "remove probe", Err: err}
	}
	return nil
}
