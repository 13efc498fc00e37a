package errors

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	assert.Nil(t, WithContext(nil, "ignored"))

	root := New("connection refused")
	err := WithContext(WithContext(root, "upload"), "sync v00000005")
	assert.EqualError(t, err, "sync v00000005: upload: connection refused")
	assert.Equal(t, root, RootCause(err))
	assert.True(t, Is(err, root))
}

func TestNew(t *testing.T) {
	assert.EqualError(t, New("100%"), "100%")
	assert.EqualError(t, New("%d upload(s) failed", 3), "3 upload(s) failed")
}

func TestAs(t *testing.T) {
	err := WithContext(IOError{Path: "/data/settings", Err: os.ErrPermission}, "save")

	var ioErr IOError
	assert.True(t, As(err, &ioErr))
	assert.Equal(t, "/data/settings", ioErr.Path)
	assert.True(t, Is(err, os.ErrPermission))

	var backendErr BackendError
	assert.False(t, As(err, &backendErr))
}

func TestGetPrintableMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  string
	}{
		{
			name: "Plain",
			err:  WithContext(FileNotFound{Path: "/srv/a.txt"}, "upload"),
			exp:  `upload: "/srv/a.txt" does not exist`,
		},
		{
			name: "Friendly",
			err:  WithContext(NewFriendlyError("Version %d hasn't been published.", 4), "promote"),
			exp:  "Version 4 hasn't been published.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, GetPrintableMessage(test.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err error
		exp string
	}{
		{
			err: FormatError{Path: "manifest", Reason: "missing VERSION"},
			exp: `malformed "manifest": missing VERSION`,
		},
		{
			err: FormatError{Path: "manifest", Line: 3, Reason: "unknown key"},
			exp: `malformed "manifest" (line 3): unknown key`,
		},
		{
			err: BackendError{Op: "list", Err: New("timeout")},
			exp: "backend list: timeout",
		},
		{
			err: BackendError{Op: "upload", Path: "v00000001/a.txt", Err: New("timeout")},
			exp: `backend upload "v00000001/a.txt": timeout`,
		},
		{
			err: ValidationError{Field: "host", Reason: "must not be empty"},
			exp: "invalid host: must not be empty",
		},
	}

	for _, test := range tests {
		assert.EqualError(t, test.err, test.exp)
	}
}
