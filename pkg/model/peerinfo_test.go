package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerInfoIsPublicNetwork(t *testing.T) {
	assert.False(t, PeerInfo{Name: "a"}.IsPublicNetwork())
	assert.True(t, PeerInfo{Name: "a", PublicIP: "1.2.3.4"}.IsPublicNetwork())
}

func TestPeerInfoAllows(t *testing.T) {
	open := PeerInfo{Name: "a"}
	assert.True(t, open.Allows("b"))

	black := PeerInfo{Name: "a", BlackList: []string{"b"}}
	assert.False(t, black.Allows("b"))
	assert.True(t, black.Allows("c"))

	white := PeerInfo{Name: "a", WhiteList: []string{"c"}}
	assert.False(t, white.Allows("b"))
	assert.True(t, white.Allows("c"))

	both := PeerInfo{Name: "a", WhiteList: []string{"b"}, BlackList: []string{"b"}}
	assert.False(t, both.Allows("b"), "black list wins over white list")
}

func TestPeerInfoEqual(t *testing.T) {
	a := PeerInfo{Name: "a", LocalIP: "10.0.0.1", Port: 7000, SessionSecret: "s", WhiteList: []string{"b"}}
	b := a
	b.WhiteList = []string{"b"}
	assert.True(t, a.Equal(b))

	b.Port = 7001
	assert.False(t, a.Equal(b))

	c := a
	c.BlackList = []string{"x"}
	assert.False(t, a.Equal(c))
}

func TestPeerInfoRedacted(t *testing.T) {
	p := PeerInfo{Name: "a", SessionSecret: "secret"}
	r := p.Redacted()
	assert.Empty(t, r.SessionSecret)
	assert.Equal(t, "secret", p.SessionSecret)
}
