package tagsink

import (
	"errors"
	"testing"

	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Adapter is what the matcher forwards tags through.
var _ trusted.TagSink = Adapter{}

type brokenStore struct{}

func (brokenStore) Set(Kind, Key, string) error { return errors.New("backend down") }

func TestForward_UnsetBindingIsNoop(t *testing.T) {
	assert.NoError(t, Forward(Binding{}, nil, "tag"))
	assert.NoError(t, Forward(Binding{}, brokenStore{}, "tag"))
}

func TestForward_Errors(t *testing.T) {
	b := mustBinding(t, "i:5")
	assert.ErrorIs(t, Forward(b, nil, "tag"), ErrNoStore)

	err := Forward(b, brokenStore{}, "tag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$avp(i:5)")
}

func TestMemoryStore(t *testing.T) {
	b := mustBinding(t, "peer")
	other := mustBinding(t, "i:1")
	store := NewMemoryStore(2)

	_, ok := store.Get(b)
	assert.False(t, ok)

	require.NoError(t, NewAdapter(b, store).Forward("first"))
	require.NoError(t, NewAdapter(b, store).Forward("second"))
	assert.ErrorIs(t, NewAdapter(b, store).Forward("third"), ErrStoreFull)

	got, ok := store.Get(b)
	require.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, []string{"second", "first"}, store.Values(b))
	assert.Empty(t, store.Values(other))
}

func TestAdapter_WithMatcher(t *testing.T) {
	tbl, err := trusted.New(trusted.DefaultConfig())
	require.NoError(t, err)
	tag := "carrier-1"
	_, err = tbl.Insert("198.51.100.7", "udp", nil, &tag)
	require.NoError(t, err)

	m := trusted.NewMatcher(trusted.NewStore(tbl), trusted.MatcherConfig{})
	b := mustBinding(t, "$avp(s:trusted_tag)")

	t.Run("tag lands in the bound slot", func(t *testing.T) {
		store := NewMemoryStore(0)
		res, err := m.Lookup(trusted.Query{Source: "198.51.100.7", Protocol: trusted.ProtoUDP, IdentityURI: "sip:a@b"}, NewAdapter(b, store))
		require.NoError(t, err)
		assert.True(t, res.Matched)
		got, ok := store.Get(b)
		require.True(t, ok)
		assert.Equal(t, "carrier-1", got)
	})

	t.Run("store failure is a forward failure", func(t *testing.T) {
		res, err := m.Lookup(trusted.Query{Source: "198.51.100.7", Protocol: trusted.ProtoUDP}, NewAdapter(b, brokenStore{}))
		assert.ErrorIs(t, err, trusted.ErrTagForward)
		assert.True(t, res.Matched)
	})

	t.Run("unset binding never touches the store", func(t *testing.T) {
		res, err := m.Lookup(trusted.Query{Source: "198.51.100.7", Protocol: trusted.ProtoUDP}, NewAdapter(Binding{}, brokenStore{}))
		require.NoError(t, err)
		assert.True(t, res.Matched)
	})
}
