package target

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/sidkik/versync/pkg/backend"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

const (
	// PointerRemotePath is where the live version pointer is stored on
	// servers that receive it.
	PointerRemotePath = "LIVEVERSION"

	// metaDir holds versync's own files within a remote version directory.
	metaDir = ".versync"
)

func remoteVersionDir(version int) string {
	return manifest.VersionString(version)
}

func remoteManifestPath(version int) string {
	return path.Join(remoteVersionDir(version), metaDir, "manifest")
}

// remoteMarkerPath is the path of the manifest hash on the server. Its
// presence means that the version was fully uploaded.
func remoteMarkerPath(version int) string {
	return remoteManifestPath(version) + manifest.HashFileSuffix
}

// VerifyAndSync makes sure the server has `version`, uploading it if
// necessary.
func (t *Target) VerifyAndSync(ctx context.Context, version int) error {
	b := t.currentBackend()
	if b == nil {
		return errors.NewFriendlyError("Server %q hasn't been configured.", t.name)
	}

	err := t.verifyAndSync(ctx, b, version)
	t.setState(Idle, 0)
	return err
}

func (t *Target) verifyAndSync(ctx context.Context, b backend.Backend, version int) error {
	logger := t.log.WithField("version", version)
	layout := t.authority.Layout()
	t.setState(Verifying, version)

	// The pointer is pushed first and on its own, so that it's kept up to
	// date even if the rest of the pass fails.
	if t.policy.AlwaysPushPointer {
		b.UploadAsync(layout.PointerPath(), PointerRemotePath)
		if err := b.Wait(ctx); err != nil {
			return errors.WithContext(err, "push live version pointer")
		}
	}

	m, err := t.authority.Manifest(version)
	if err != nil {
		return errors.WithContext(err, "load local manifest")
	}

	if m == nil {
		logger.Debug("No local manifest. Nothing to sync.")
		t.setState(Satisfied, version)
		return nil
	}

	localHash, err := t.authority.ManifestHash(version)
	if err != nil {
		return errors.WithContext(err, "read local manifest hash")
	}

	remoteHash, ok, err := b.DownloadString(ctx, remoteMarkerPath(version))
	if err != nil {
		return errors.WithContext(err, "download marker")
	}

	if ok {
		if strings.TrimSpace(remoteHash) == localHash {
			logger.Debug("Already synced")
			t.setState(Satisfied, version)
			return nil
		}

		logger.Info("Server has a different manifest for this version")
		if t.policy.OnMismatch == ClearAndReupload {
			if err := b.DeleteDirectory(ctx, remoteVersionDir(version)); err != nil {
				return errors.WithContext(err, "clear remote version")
			}
		}
	}

	contentDir := layout.ContentDir(version)
	if err := m.Verify(contentDir); err != nil {
		return err
	}

	t.setState(Uploading, version)
	numFiles := 0
	if t.policy.UploadContent {
		for _, f := range m.Files {
			b.UploadAsync(filepath.Join(contentDir, filepath.FromSlash(f.Path)),
				path.Join(remoteVersionDir(version), f.Path))
			numFiles++
		}
	}
	b.UploadAsync(layout.ManifestPath(version), remoteManifestPath(version))

	t.setState(AwaitingCompletion, version)
	if err := b.Wait(ctx); err != nil {
		return errors.WithContext(err, "upload files")
	}

	// The marker goes last so that it's never present for a version that was
	// only partially uploaded.
	b.UploadAsync(layout.ManifestHashPath(version), remoteMarkerPath(version))
	if err := b.Wait(ctx); err != nil {
		return errors.WithContext(err, "upload marker")
	}

	logger.WithField("files", numFiles).Info("Synced version")
	return nil
}
