package promote

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/authority"
	"github.com/sidkik/versync/pkg/errors"
	"github.com/sidkik/versync/pkg/manifest"
)

func TestPromote(t *testing.T) {
	a, err := authority.New(t.TempDir())
	require.NoError(t, err)
	var out bytes.Buffer
	stdout = &out

	var friendly errors.FriendlyError
	err = promote(a, 0)
	assert.True(t, errors.As(err, &friendly))
	assert.Equal(t, "Version 1 hasn't been published.", err.Error())

	require.NoError(t, a.SetNextVersion(&manifest.Manifest{Version: 1}))
	require.NoError(t, promote(a, 0))
	assert.Equal(t, 1, a.LiveVersion())
	assert.Equal(t, "Version 1 is live\n", out.String())

	// Promoting the live version again is rejected.
	err = promote(a, 1)
	assert.True(t, errors.As(err, &friendly))
	assert.Equal(t, 1, a.LiveVersion())

	require.NoError(t, a.SetNextVersion(&manifest.Manifest{Version: 2}))
	require.NoError(t, promote(a, 2))
	assert.Equal(t, 2, a.LiveVersion())
}
