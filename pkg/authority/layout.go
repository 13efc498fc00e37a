package authority

import (
	"path/filepath"

	"github.com/sidkik/versync/pkg/manifest"
)

const (
	settingsFile = "settings"
	pointerFile  = "LIVEVERSION"
	versionsDir  = "versions"
	manifestFile = "manifest"
	contentDir   = "content"
)

// Layout describes where the authority keeps its files on the local disk:
//
//	<root>/settings                        persisted authority state
//	<root>/LIVEVERSION                     the live version pointer
//	<root>/versions/<v>/manifest           a version's manifest
//	<root>/versions/<v>/manifest.sha512    the manifest's hash
//	<root>/versions/<v>/content/...        the version's content tree
type Layout struct {
	Root string
}

func (l Layout) SettingsPath() string {
	return filepath.Join(l.Root, settingsFile)
}

func (l Layout) PointerPath() string {
	return filepath.Join(l.Root, pointerFile)
}

func (l Layout) VersionsDir() string {
	return filepath.Join(l.Root, versionsDir)
}

func (l Layout) VersionDir(version int) string {
	return filepath.Join(l.VersionsDir(), manifest.VersionString(version))
}

func (l Layout) ContentDir(version int) string {
	return filepath.Join(l.VersionDir(version), contentDir)
}

func (l Layout) ManifestPath(version int) string {
	return filepath.Join(l.VersionDir(version), manifestFile)
}

func (l Layout) ManifestHashPath(version int) string {
	return l.ManifestPath(version) + manifest.HashFileSuffix
}
