package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkTokenRoundTrip(t *testing.T) {
	tok, err := LinkToken("alice", "s3cret", time.Minute)
	require.NoError(t, err)

	name, err := ParseLink(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestLinkTokenWrongSecret(t *testing.T) {
	tok, err := LinkToken("alice", "s3cret", time.Minute)
	require.NoError(t, err)

	_, err = ParseLink(tok, "other")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLinkTokenExpired(t *testing.T) {
	tok, err := LinkToken("alice", "s3cret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseLink(tok, "s3cret")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPolicyVerify(t *testing.T) {
	p, err := NewPolicy(map[string]string{"alice": "pw1"})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.True(t, p.Verify("alice", "pw1"))
	assert.False(t, p.Verify("alice", "nope"))
	assert.False(t, p.Verify("bob", "pw1"))
	assert.NotEqual(t, "pw1", p["alice"])
}

func TestNewPolicyEmptyIsDisabled(t *testing.T) {
	p, err := NewPolicy(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.Clone())
}

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers("alice:pw1, bob:pw2,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "pw1", "bob": "pw2"}, users)

	_, err = ParseUsers("alice")
	assert.Error(t, err)
}
