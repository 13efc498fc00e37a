package server

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/backend"
	"github.com/sidkik/versync/pkg/backend/mocks"
	"github.com/sidkik/versync/pkg/config"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/target"
)

func setup(t *testing.T) (*bytes.Buffer, config.User) {
	userConfig := config.User{ServersDir: t.TempDir()}
	parseUserConfig = func() (config.User, error) {
		return userConfig, nil
	}

	var out bytes.Buffer
	stdout = &out
	return &out, userConfig
}

func TestAddSetRemove(t *testing.T) {
	out, userConfig := setup(t)

	require.NoError(t, add(target.Settings{Name: "edge", Role: target.Mirror}))
	settings, err := target.NewSettingsFile(userConfig.ServerSettingsPath("edge")).Load()
	require.NoError(t, err)
	assert.Equal(t, target.Settings{Name: "edge", Role: target.Mirror}, settings)

	var friendly errors.FriendlyError
	err = add(target.Settings{Name: "edge", Role: target.Master})
	assert.True(t, errors.As(err, &friendly))

	err = add(target.Settings{Name: "bad/name", Role: target.Master})
	assert.True(t, errors.As(err, &friendly))

	flags := connectionFlags{
		host:         "minio:9000/releases",
		user:         "access",
		password:     "secret",
		kind:         string(backend.S3),
		downloadKind: string(backend.HTTPS),
		downloadHost: "cdn.example.com",
	}
	require.NoError(t, set("edge", flags))
	settings, err = target.NewSettingsFile(userConfig.ServerSettingsPath("edge")).Load()
	require.NoError(t, err)
	assert.Equal(t, target.Settings{
		Name:         "edge",
		Role:         target.Mirror,
		Host:         "minio:9000/releases",
		User:         "access",
		Password:     "secret",
		Backend:      backend.S3,
		DownloadKind: backend.HTTPS,
		DownloadHost: "cdn.example.com",
	}, settings)

	err = set("edge", connectionFlags{kind: "ftp", host: "x"})
	assert.True(t, errors.As(err, &friendly))
	err = set("edge", connectionFlags{kind: string(backend.S3)})
	assert.True(t, errors.As(err, &friendly))
	err = set("missing", flags)
	assert.True(t, errors.As(err, &friendly))

	require.NoError(t, remove("edge"))
	_, err = os.Stat(userConfig.ServerSettingsPath("edge"))
	assert.True(t, os.IsNotExist(err))
	err = remove("edge")
	assert.True(t, errors.As(err, &friendly))

	assert.Equal(t, "Added server \"edge\"\n"+
		"Updated server \"edge\"\n"+
		"Removed server \"edge\"\n", out.String())
}

func TestList(t *testing.T) {
	out, userConfig := setup(t)

	require.NoError(t, add(target.Settings{Name: "origin", Role: target.Master}))
	require.NoError(t, add(target.Settings{
		Name:         "edge",
		Role:         target.Mirror,
		Host:         "/srv/edge",
		Backend:      backend.Filesystem,
		DownloadKind: backend.HTTPS,
	}))
	require.NoError(t, os.WriteFile(
		filepath.Join(userConfig.ServersDir, "broken.yaml"), []byte("name: [\n"), 0600))
	out.Reset()

	require.NoError(t, list())
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Regexp(t, `^NAME\s+ROLE\s+BACKEND\s+HOST$`, string(lines[0]))
	assert.Regexp(t, `^broken\s+-\s+-\s+\(invalid: .*`, string(lines[1]))
	assert.Regexp(t, `^edge\s+mirror\s+filesystem\s+/srv/edge$`, string(lines[2]))
	assert.Regexp(t, `^origin\s+master\s+-\s+\(not configured\)$`, string(lines[3]))
}

func TestTestConnection(t *testing.T) {
	out, _ := setup(t)
	require.NoError(t, add(target.Settings{Name: "origin", Role: target.Master}))
	require.NoError(t, add(target.Settings{
		Name:         "edge",
		Role:         target.Mirror,
		Host:         "/srv/edge",
		Backend:      backend.Filesystem,
		DownloadKind: backend.HTTPS,
	}))
	out.Reset()

	b := &mocks.Backend{}
	b.On("TestConnection", mock.Anything).Return(nil).Once()
	b.On("TestConnection", mock.Anything).Return(errors.New("permission denied")).Once()
	b.On("Close").Return(nil)

	var opts backend.Options
	origNewBackend := newBackend
	defer func() { newBackend = origNewBackend }()
	newBackend = func(o backend.Options) (backend.Backend, error) {
		opts = o
		return b, nil
	}

	ctx := context.Background()
	require.NoError(t, test(ctx, "edge"))
	assert.Equal(t, "Successfully connected to \"edge\"\n", out.String())
	assert.Equal(t, backend.Options{
		Kind:         backend.Filesystem,
		Host:         "/srv/edge",
		SkipIfExists: true,
	}, opts)

	assert.EqualError(t, test(ctx, "edge"), "test connection: permission denied")
	b.AssertNumberOfCalls(t, "Close", 2)

	var friendly errors.FriendlyError
	assert.True(t, errors.As(test(ctx, "origin"), &friendly))
	assert.True(t, errors.As(test(ctx, "missing"), &friendly))
}
