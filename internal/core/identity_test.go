package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterTrimsAndLooksUp(t *testing.T) {
	r := NewRegistry()

	name, err := r.Register("c1", "  alice\t")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	got, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", got)

	conn, ok := r.LookupConnection("alice")
	assert.True(t, ok)
	assert.Equal(t, "c1", conn)
}

func TestRegistryRejectsInvalidAndTaken(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("c1", "   ")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = r.Register("c1", "alice")
	require.NoError(t, err)

	_, err = r.Register("c2", " alice ")
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = r.Register("c1", "alice2")
	assert.True(t, errors.Is(err, ErrConflict))

	// Usernames are case-sensitive.
	_, err = r.Register("c3", "Alice")
	assert.NoError(t, err)

	assert.Equal(t, []string{"Alice", "alice"}, r.Usernames())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("c1", "alice")
	require.NoError(t, err)

	name, ok := r.Remove("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = r.Remove("c1")
	assert.False(t, ok)

	_, ok = r.LookupConnection("alice")
	assert.False(t, ok)
	_, ok = r.Lookup("c1")
	assert.False(t, ok)
}

func TestRegistryRejectsSeparatorAndBroadcastName(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"mary-jane", BroadcastRecipient} {
		_, err := r.Register("c1", name)
		assert.True(t, errors.Is(err, ErrInvalidInput), name)
	}
	assert.Zero(t, r.Len())

	// Keys derived from accepted names split back into exactly two parts.
	_, err := r.Register("c1", "mary_jane")
	require.NoError(t, err)
	assert.Equal(t, DeriveKey("bob", "mary_jane"), NormalizeKey("mary_jane-bob"))
}
