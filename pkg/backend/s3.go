package backend

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sidkik/versync/pkg/errors"
)

const noSuchKey = "NoSuchKey"

type s3Backend struct {
	*jobTracker

	client *minio.Client
	bucket string
	prefix string
}

// s3Location is the parsed form of an S3 backend's host.
type s3Location struct {
	endpoint string
	secure   bool
	bucket   string
	prefix   string
}

// parseS3Host parses hosts of the form `[scheme://]endpoint/bucket[/prefix]`.
// The scheme defaults to https.
func parseS3Host(host string) (s3Location, error) {
	loc := s3Location{secure: true}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return s3Location{}, errors.ValidationError{Field: "host", Reason: err.Error()}
		}

		switch u.Scheme {
		case "http":
			loc.secure = false
		case "https":
		default:
			return s3Location{}, errors.ValidationError{
				Field: "host", Reason: "scheme must be http or https"}
		}
		host = u.Host + u.Path
	}

	parts := strings.SplitN(strings.Trim(host, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return s3Location{}, errors.ValidationError{
			Field: "host", Reason: "expected endpoint/bucket[/prefix]"}
	}

	loc.endpoint = parts[0]
	loc.bucket = parts[1]
	if len(parts) == 3 {
		loc.prefix = strings.Trim(parts[2], "/")
	}
	return loc, nil
}

func newS3Backend(opts Options) (Backend, error) {
	loc, err := parseS3Host(opts.Host)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(loc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Password, ""),
		Secure: loc.secure,
	})
	if err != nil {
		return nil, errors.BackendError{Op: "create client", Path: loc.endpoint, Err: err}
	}

	b := &s3Backend{
		client: client,
		bucket: loc.bucket,
		prefix: loc.prefix,
	}
	b.jobTracker = newJobTracker(opts.Parallelism, opts.SkipIfExists, b.upload)
	return b, nil
}

func (b *s3Backend) key(remotePath string) string {
	return path.Join(b.prefix, remotePath)
}

func (b *s3Backend) upload(ctx context.Context, localPath, remotePath string) error {
	key := b.key(remotePath)
	if b.SkipIfExists() {
		_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return nil
		}
		if minio.ToErrorResponse(err).Code != noSuchKey {
			return errors.BackendError{Op: "stat", Path: remotePath, Err: err}
		}
	}

	_, err := b.client.FPutObject(ctx, b.bucket, key, localPath, minio.PutObjectOptions{})
	if err != nil {
		return errors.BackendError{Op: "upload", Path: remotePath, Err: err}
	}
	return nil
}

func (b *s3Backend) DownloadString(ctx context.Context, remotePath string) (string, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(remotePath), minio.GetObjectOptions{})
	if err != nil {
		return "", false, errors.BackendError{Op: "download", Path: remotePath, Err: err}
	}
	defer obj.Close()

	// GetObject is lazy, so a missing key is only reported once we read.
	contents, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return "", false, nil
		}
		return "", false, errors.BackendError{Op: "download", Path: remotePath, Err: err}
	}
	return string(contents), true, nil
}

func (b *s3Backend) DeleteDirectory(ctx context.Context, remotePath string) error {
	prefix := b.key(remotePath) + "/"
	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	toRemove := make(chan minio.ObjectInfo)
	listErrs := make(chan error, 1)
	go func() {
		listErrs <- filterListErrors(ctx, objects, toRemove)
	}()

	var removeErr error
	for res := range b.client.RemoveObjects(ctx, b.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if removeErr == nil {
			removeErr = errors.WithContext(res.Err, res.ObjectName)
		}
	}

	listErr := <-listErrs
	if listErr != nil {
		return errors.BackendError{Op: "list", Path: remotePath, Err: listErr}
	}
	if removeErr != nil {
		return errors.BackendError{Op: "delete", Path: remotePath, Err: removeErr}
	}
	return nil
}

func (b *s3Backend) TestConnection(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return errors.BackendError{Op: "check bucket", Path: b.bucket, Err: err}
	}

	if !exists {
		return errors.BackendError{Op: "check bucket", Path: b.bucket,
			Err: errors.New("bucket does not exist")}
	}
	return nil
}

// filterListErrors forwards listed objects to `toRemove` until the listing is
// done or `ctx` is cancelled, and then closes `toRemove`. ListObjects reports
// errors in-band, so they're held back and the first one is returned.
func filterListErrors(ctx context.Context, objects <-chan minio.ObjectInfo,
	toRemove chan<- minio.ObjectInfo) error {

	defer close(toRemove)

	var listErr error
	for obj := range objects {
		if obj.Err != nil {
			if listErr == nil {
				listErr = obj.Err
			}
			continue
		}

		select {
		case toRemove <- obj:
		case <-ctx.Done():
			if listErr == nil {
				listErr = ctx.Err()
			}
			return listErr
		}
	}
	return listErr
}
