// Package backend contains the transports used to move version content to
// remote servers. Uploads are asynchronous: callers queue them with
// UploadAsync, and then block on Wait until the whole batch has completed.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sidkik/versync/pkg/errors"
)

// Backend is a connection to a single remote server.
type Backend interface {
	// UploadAsync queues the local file to be copied to `remotePath`. Failures
	// are reported by the next call to Wait.
	UploadAsync(localPath, remotePath string)

	// Wait blocks until all queued uploads have completed, and returns an
	// error if any of them failed.
	Wait(ctx context.Context) error

	// DownloadString returns the contents of the remote file. The boolean is
	// false if the file doesn't exist.
	DownloadString(ctx context.Context, remotePath string) (string, bool, error)

	// DeleteDirectory recursively removes a remote directory. Removing a
	// directory that doesn't exist isn't an error.
	DeleteDirectory(ctx context.Context, remotePath string) error

	JobsRemaining() int
	IsBusy() bool

	// SkipIfExists controls whether uploads to paths that already exist on
	// the remote are skipped.
	SkipIfExists() bool
	SetSkipIfExists(skip bool)

	// TestConnection checks that the server is reachable and writable with
	// the configured credentials.
	TestConnection(ctx context.Context) error

	Close() error
}

// Kind identifies a transport implementation.
type Kind string

const (
	// Filesystem copies files into a directory, usually a network mount.
	Filesystem Kind = "filesystem"

	// S3 uploads files to a bucket on an S3 compatible object store.
	S3 Kind = "s3"
)

// Kinds lists the supported transports.
var Kinds = []Kind{Filesystem, S3}

// Validate returns a ValidationError if `kind` isn't supported.
func (kind Kind) Validate() error {
	for _, supported := range Kinds {
		if kind == supported {
			return nil
		}
	}
	return errors.ValidationError{
		Field:  "backend",
		Reason: fmt.Sprintf("unknown kind %q (expected one of %s)", kind, joinKinds(Kinds)),
	}
}

// DownloadKind is the protocol that clients use to download content from a
// server once it's been synced.
type DownloadKind string

const (
	HTTP  DownloadKind = "http"
	HTTPS DownloadKind = "https"
)

// Validate returns a ValidationError if `kind` isn't supported.
func (kind DownloadKind) Validate() error {
	switch kind {
	case HTTP, HTTPS:
		return nil
	}
	return errors.ValidationError{
		Field:  "download kind",
		Reason: fmt.Sprintf("unknown kind %q (expected http or https)", kind),
	}
}

// DownloadURL returns the public URL of `remotePath` on a server whose
// content is served from `host`.
func (kind DownloadKind) DownloadURL(host, remotePath string) string {
	u := url.URL{
		Scheme: string(kind),
		Host:   host,
		Path:   "/" + strings.TrimPrefix(remotePath, "/"),
	}
	return u.String()
}

// Options configures a new Backend.
type Options struct {
	Kind Kind

	// Host is the root directory for Filesystem backends, and
	// `[scheme://]endpoint/bucket[/prefix]` for S3 backends.
	Host string

	User     string
	Password string

	SkipIfExists bool

	// Parallelism is the maximum number of concurrent uploads. It defaults to
	// DefaultParallelism.
	Parallelism int
}

// DefaultParallelism is the number of concurrent uploads used when
// Options.Parallelism isn't set.
const DefaultParallelism = 8

// New creates a Backend according to `opts`. It doesn't connect to the
// server; use TestConnection for that.
func New(opts Options) (Backend, error) {
	if err := opts.Kind.Validate(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(opts.Host) == "" {
		return nil, errors.ValidationError{Field: "host", Reason: "must not be empty"}
	}

	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}

	switch opts.Kind {
	case Filesystem:
		return newFilesystemBackend(opts)
	case S3:
		return newS3Backend(opts)
	}
	panic("unreachable")
}

func joinKinds(kinds []Kind) string {
	var strs []string
	for _, kind := range kinds {
		strs = append(strs, string(kind))
	}
	return strings.Join(strs, ", ")
}
