package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/versync/pkg/errors"
)

func TestPool(t *testing.T) {
	auth := newTestAuthority(t)
	pool := NewPool(auth, nil)

	// Unconfigured targets don't need a backend.
	_, err := pool.Add(Settings{Name: "zeta", Role: Mirror}, nil)
	require.NoError(t, err)
	alpha, err := pool.Add(Settings{Name: "alpha", Role: Master}, nil)
	require.NoError(t, err)

	_, err = pool.Add(Settings{Name: "alpha", Role: Mirror}, nil)
	var validationErr errors.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	_, err = pool.Add(Settings{Name: "", Role: Mirror}, nil)
	assert.True(t, errors.As(err, &validationErr))

	got, ok := pool.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, alpha, got)

	var names []string
	for _, tgt := range pool.Targets() {
		names = append(names, tgt.Name())
	}
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	require.NoError(t, pool.Remove("alpha"))
	assert.Error(t, pool.Remove("alpha"))
	_, ok = pool.Get("alpha")
	assert.False(t, ok)

	pool.Close()
	assert.Empty(t, pool.Targets())
	_, err = pool.Add(Settings{Name: "omega", Role: Mirror}, nil)
	assert.Error(t, err)
}
