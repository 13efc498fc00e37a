package manifest

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/errors"
)

func writeFiles(t *testing.T, files map[string]string) {
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
	}
}

func TestCreate(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/content/index.html":        "index",
		"/content/css/site.css":      "css",
		"/content/css/site.css.tmp":  "scratch",
		"/content/build/out.bin":     "build output",
		"/content/build/nested/a":    "nested build output",
		"/content/docs/build/readme": "unanchored patterns match in every directory",
		"/outside":                   "outside",
	})

	m, err := Create(3, "/content", []string{"*.tmp", "build"})
	require.NoError(t, err)

	assert.Equal(t, 3, m.Version)
	assert.Equal(t, []string{"*.tmp", "build"}, m.Ignore)
	assert.Equal(t, []FileEntry{
		{Path: "css/site.css", Hash: HashBytes([]byte("css"))},
		{Path: "index.html", Hash: HashBytes([]byte("index"))},
	}, m.Files)
}

func TestCreateAnchoredFilter(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/content/build/out.bin":     "build output",
		"/content/docs/build/readme": "docs",
	})

	m, err := Create(1, "/content", []string{"build/**"})
	require.NoError(t, err)
	assert.Equal(t, []FileEntry{
		{Path: "docs/build/readme", Hash: HashBytes([]byte("docs"))},
	}, m.Files)
}

func TestCreateErrors(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := Create(1, "/does-not-exist", nil)
	var ioErr errors.IOError
	assert.True(t, errors.As(err, &ioErr))

	writeFiles(t, map[string]string{"/content/a": "a"})
	_, err = Create(1, "/content", []string{" "})
	var validationErr errors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestWriteAndCreateFromFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	exp := &Manifest{
		Version: 7,
		Files: []FileEntry{
			{Path: "a.txt", Hash: "aGFzaC1h"},
			{Path: "dir/with space.txt", Hash: "aGFzaC1i"},
		},
		Ignore: []string{"*.tmp", "cache/**"},
	}

	require.NoError(t, exp.Write("/versions/v00000007/manifest"))

	actual, err := CreateFromFile("/versions/v00000007/manifest")
	require.NoError(t, err)
	assert.True(t, exp.Equal(actual))
	assert.Equal(t, exp, actual)

	hash, err := ReadHash("/versions/v00000007/manifest")
	require.NoError(t, err)
	assert.Equal(t, exp.Hash(), hash)
}

func TestCreateFromFileMissing(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := CreateFromFile("/missing")
	assert.Equal(t, errors.FileNotFound{Path: "/missing"}, err)

	_, err = ReadHash("/missing")
	assert.Equal(t, errors.FileNotFound{Path: "/missing" + HashFileSuffix}, err)
}

func TestUnmarshalFormatErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		expLine  int
	}{
		{
			name:     "MissingVersion",
			contents: "FILE=aGFzaA== a.txt\n",
			expLine:  0,
		},
		{
			name:     "NotKeyValue",
			contents: "VERSION=1\ngarbage\n",
			expLine:  2,
		},
		{
			name:     "UnknownKey",
			contents: "VERSION=1\nOWNER=me\n",
			expLine:  2,
		},
		{
			name:     "BadVersion",
			contents: "VERSION=one\n",
			expLine:  1,
		},
		{
			name:     "NegativeVersion",
			contents: "VERSION=-3\n",
			expLine:  1,
		},
		{
			name:     "DuplicateVersion",
			contents: "VERSION=1\nVERSION=2\n",
			expLine:  2,
		},
		{
			name:     "FileWithoutPath",
			contents: "VERSION=1\nFILE=aGFzaA==\n",
			expLine:  2,
		},
		{
			name:     "EscapingPath",
			contents: "VERSION=1\nFILE=aGFzaA== ../../x\n",
			expLine:  2,
		},
		{
			name:     "NestedEscapingPath",
			contents: "VERSION=1\nFILE=aGFzaA== a/../../x\n",
			expLine:  2,
		},
		{
			name:     "AbsolutePath",
			contents: "VERSION=1\nFILE=aGFzaA== /etc/passwd\n",
			expLine:  2,
		},
		{
			name:     "UncleanPath",
			contents: "VERSION=1\nFILE=aGFzaA== ./a.txt\n",
			expLine:  2,
		},
		{
			name:     "DuplicatePath",
			contents: "VERSION=1\nFILE=aGFzaA== a.txt\nFILE=aGFzaB== a.txt\n",
			expLine:  3,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := Unmarshal("manifest", []byte(test.contents))
			var formatErr errors.FormatError
			require.True(t, errors.As(err, &formatErr), "unexpected error: %v", err)
			assert.Equal(t, test.expLine, formatErr.Line)
			assert.Equal(t, "manifest", formatErr.Path)
		})
	}
}

func TestUnmarshalIgnoresComments(t *testing.T) {
	m, err := Unmarshal("manifest", []byte("# published by ci\n\nVERSION=2\r\nFILE=aGFzaA== b\nFILE=aGFzaA== a\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, []FileEntry{{Path: "a", Hash: "aGFzaA=="}, {Path: "b", Hash: "aGFzaA=="}}, m.Files)
}

func TestVerify(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/content/a.txt": "original",
		"/content/b.txt": "b",
	})

	m, err := Create(5, "/content", nil)
	require.NoError(t, err)
	assert.NoError(t, m.Verify("/content"))

	writeFiles(t, map[string]string{"/content/a.txt": "tampered"})
	assert.Equal(t, errors.IntegrityError{
		Path:     "a.txt",
		Expected: HashBytes([]byte("original")),
		Actual:   HashBytes([]byte("tampered")),
	}, m.Verify("/content"))

	writeFiles(t, map[string]string{"/content/a.txt": "original"})
	require.NoError(t, fs.Remove("/content/b.txt"))
	assert.Equal(t, errors.IntegrityError{
		Path:     "b.txt",
		Expected: HashBytes([]byte("b")),
		Actual:   MissingHash,
	}, m.Verify("/content"))
}

func TestLookup(t *testing.T) {
	m := &Manifest{Files: []FileEntry{{Path: "a"}, {Path: "c"}}}

	f, ok := m.Lookup("c")
	assert.True(t, ok)
	assert.Equal(t, "c", f.Path)

	_, ok = m.Lookup("b")
	assert.False(t, ok)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "v00000042", VersionString(42))
}
