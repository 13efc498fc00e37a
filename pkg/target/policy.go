package target

import (
	"fmt"

	"github.com/sidkik/versync/pkg/errors"
)

// MismatchAction is what a target does when the remote has a different
// manifest for a version than the local one.
type MismatchAction int

const (
	// Overwrite re-uploads files on top of the existing remote files.
	Overwrite MismatchAction = iota

	// ClearAndReupload deletes the remote version directory, and then uploads
	// everything from scratch. This is simpler than reconciling the remote
	// contents file by file.
	ClearAndReupload
)

// Policy controls how a Target syncs a version.
type Policy struct {
	OnMismatch MismatchAction

	// AlwaysPushPointer uploads the live version pointer at the start of every
	// sync pass, whether or not the version needs to be synced.
	AlwaysPushPointer bool

	// UploadContent uploads the files listed in the manifest. When false,
	// only the manifest itself is uploaded.
	UploadContent bool

	// SkipIfExists configures the backend to skip files that already exist on
	// the remote.
	SkipIfExists bool
}

// MirrorPolicy is used for servers that host the full content of each
// version.
func MirrorPolicy() Policy {
	return Policy{
		OnMismatch:    ClearAndReupload,
		UploadContent: true,
		SkipIfExists:  true,
	}
}

// MasterPolicy is used for servers that only host metadata: the live version
// pointer and each version's manifest.
func MasterPolicy() Policy {
	return Policy{
		OnMismatch:        Overwrite,
		AlwaysPushPointer: true,
	}
}

// Role is the kind of server a Target syncs to.
type Role string

const (
	Master Role = "master"
	Mirror Role = "mirror"
)

// Policy returns the sync policy for servers with the role.
func (role Role) Policy() Policy {
	if role == Master {
		return MasterPolicy()
	}
	return MirrorPolicy()
}

// Validate returns a ValidationError if the role is unknown.
func (role Role) Validate() error {
	switch role {
	case Master, Mirror:
		return nil
	}
	return errors.ValidationError{
		Field:  "role",
		Reason: fmt.Sprintf("unknown role %q (expected master or mirror)", role),
	}
}
