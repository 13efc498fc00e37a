package publish

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

func writeTree(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for path, contents := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(contents), 0644))
	}
	return dir
}

func TestRun(t *testing.T) {
	a, err := authority.New(t.TempDir())
	require.NoError(t, err)
	origOpenAuthority := openAuthority
	defer func() { openAuthority = origOpenAuthority }()
	openAuthority = func() (*authority.Authority, config.User, error) {
		return a, config.User{}, nil
	}

	var out bytes.Buffer
	stdout = &out

	src := writeTree(t, map[string]string{
		"index.html":    "index",
		"versync.yaml":  "ignore: ['*.map']\n",
		"js/app.js":     "app",
		"js/app.js.map": "map",
		"notes.tmp":     "tmp",
	})
	require.NoError(t, run(src, []string{"*.tmp"}, false))
	assert.Equal(t, "Published version 1 (2 files)\n", out.String())

	m, err := a.Manifest(1)
	require.NoError(t, err)
	assert.Equal(t, []manifest.FileEntry{
		{Path: "index.html", Hash: manifest.HashBytes([]byte("index"))},
		{Path: "js/app.js", Hash: manifest.HashBytes([]byte("app"))},
	}, m.Files)
	assert.Equal(t, 0, a.LiveVersion())

	// The next slot is taken until version 1 is promoted.
	err = publish(a, src, nil, false)
	var friendly errors.FriendlyError
	assert.True(t, errors.As(err, &friendly))
}

func TestPublishAndPromote(t *testing.T) {
	a, err := authority.New(t.TempDir())
	require.NoError(t, err)

	var out bytes.Buffer
	stdout = &out

	src := writeTree(t, map[string]string{"a.txt": "a"})
	require.NoError(t, publish(a, src, nil, true))
	require.NoError(t, publish(a, src, nil, true))
	assert.Equal(t, 2, a.LiveVersion())
	assert.Equal(t, "Published version 1 (1 files)\nVersion 1 is live\n"+
		"Published version 2 (1 files)\nVersion 2 is live\n", out.String())
}

func TestRunNotADirectory(t *testing.T) {
	src := writeTree(t, map[string]string{"a.txt": "a"})
	err := run(filepath.Join(src, "a.txt"), nil, false)
	var friendly errors.FriendlyError
	assert.True(t, errors.As(err, &friendly))
}
