package checker

import (
	"errors"
	"testing"

	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/tagsink"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker(t *testing.T, binding string) *Checker {
	t.Helper()
	tbl, err := trusted.New(trusted.DefaultConfig())
	require.NoError(t, err)
	tag := "peerA"
	_, err = tbl.Insert("10.0.0.5", "udp", nil, &tag)
	require.NoError(t, err)
	bad := "(unclosed"
	_, err = tbl.Insert("10.0.0.6", "any", &bad, nil)
	require.NoError(t, err)

	m := trusted.NewMatcher(trusted.NewStore(tbl), trusted.MatcherConfig{})
	b, err := tagsink.ParseBinding(binding)
	require.NoError(t, err)
	return New(m, b, metrics.New())
}

func TestCheck(t *testing.T) {
	c := newChecker(t, "s:peer")

	d := c.Check(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoUDP, IdentityURI: "sip:a@b"})
	require.NoError(t, d.Err)
	assert.True(t, d.Matched)
	assert.Equal(t, "peerA", d.Tag)
	assert.Equal(t, "peerA", d.Attribute)
	assert.True(t, d.Trusted(false))

	d = c.Check(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoTCP, IdentityURI: "sip:a@b"})
	require.NoError(t, d.Err)
	assert.False(t, d.Matched)
	assert.Empty(t, d.Attribute)

	d = c.Check(trusted.Query{Source: "10.0.0.6", Protocol: trusted.ProtoTCP, IdentityURI: "sip:a@b"})
	assert.ErrorIs(t, d.Err, trusted.ErrInvalidPattern)
	assert.False(t, d.Trusted(true))
}

func TestCheck_UnsetBinding(t *testing.T) {
	c := newChecker(t, "")
	d := c.Check(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoUDP})
	require.NoError(t, d.Err)
	assert.Equal(t, "peerA", d.Tag)
	assert.Empty(t, d.Attribute)
}

func TestDecisionTrusted(t *testing.T) {
	fwd := Decision{Matched: true, Err: errors.New("forward")}
	assert.True(t, fwd.Trusted(true))
	assert.False(t, fwd.Trusted(false))
	assert.False(t, Decision{}.Trusted(true))
}
