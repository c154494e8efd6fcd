package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-hub/pkg/model"
)

func TestUpsertBumpsVersionOnlyOnChange(t *testing.T) {
	s := NewMemoryStore()
	p := model.PeerInfo{Name: "alice", LocalIP: "10.0.0.1", Port: 7000}

	changed, err := s.UpsertPeer(p)
	require.NoError(t, err)
	assert.True(t, changed)
	v1, _ := s.Version()

	changed, _ = s.UpsertPeer(p)
	assert.False(t, changed)
	v2, _ := s.Version()
	assert.Equal(t, v1, v2)

	p.Port = 7001
	changed, _ = s.UpsertPeer(p)
	assert.True(t, changed)
	v3, _ := s.Version()
	assert.Greater(t, v3, v2)

	got, ok, _ := s.GetPeer("alice")
	require.True(t, ok)
	assert.Equal(t, 7001, got.Port)
}

func TestDeletePeerIdempotent(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.UpsertPeer(model.PeerInfo{Name: "alice"})

	removed, err := s.DeletePeer("alice")
	require.NoError(t, err)
	assert.True(t, removed)
	v, _ := s.Version()

	removed, err = s.DeletePeer("alice")
	require.NoError(t, err)
	assert.False(t, removed)
	v2, _ := s.Version()
	assert.Equal(t, v, v2)
}

func TestRelayLinksSymmetric(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AddRelayLink("eve", "frank"))
	require.NoError(t, s.AddRelayLink("eve", "gina"))

	links, _ := s.RelayLinks("eve")
	assert.Equal(t, []string{"frank", "gina"}, links)
	links, _ = s.RelayLinks("frank")
	assert.Equal(t, []string{"eve"}, links)

	ok, _ := s.HasRelayLink("frank", "eve")
	assert.True(t, ok)

	require.NoError(t, s.RemoveRelayLink("frank", "eve"))
	links, _ = s.RelayLinks("eve")
	assert.Equal(t, []string{"gina"}, links)
	links, _ = s.RelayLinks("frank")
	assert.Empty(t, links)
}

func TestRemoveRelayLinksReturnsPartners(t *testing.T) {
	s := NewMemoryStore()
	_ = s.AddRelayLink("eve", "frank")
	_ = s.AddRelayLink("eve", "gina")
	_ = s.AddRelayLink("frank", "gina")

	partners, err := s.RemoveRelayLinks("eve")
	require.NoError(t, err)
	assert.Equal(t, []string{"frank", "gina"}, partners)

	for _, n := range []string{"frank", "gina"} {
		links, _ := s.RelayLinks(n)
		assert.NotContains(t, links, "eve")
	}
	links, _ := s.RelayLinks("frank")
	assert.Equal(t, []string{"gina"}, links)

	partners, err = s.RemoveRelayLinks("eve")
	require.NoError(t, err)
	assert.Empty(t, partners)
}

func TestListPeersSorted(t *testing.T) {
	s := NewMemoryStore()
	for _, n := range []string{"c", "a", "b"} {
		_, _ = s.UpsertPeer(model.PeerInfo{Name: n})
	}
	peers, _ := s.ListPeers()
	require.Len(t, peers, 3)
	assert.Equal(t, "a", peers[0].Name)
	assert.Equal(t, "c", peers[2].Name)
}

func TestAuditLimit(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		_ = s.AppendAudit(model.AuditEntry{Action: model.AuditRegister, Target: fmt.Sprint(i)})
	}
	entries, _ := s.ListAudit(2)
	require.Len(t, entries, 2)
	assert.Equal(t, "3", entries[0].Target)
	assert.Equal(t, "4", entries[1].Target)
	assert.False(t, entries[1].Timestamp.IsZero())
}

func TestConcurrentRegisterAndDisconnect(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		name := fmt.Sprintf("p%d", i)
		go func() {
			defer wg.Done()
			_, _ = s.UpsertPeer(model.PeerInfo{Name: name})
			_ = s.AddRelayLink(name, "hub")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.ListPeers()
			_, _ = s.Version()
		}()
	}
	wg.Wait()
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("p%d", i)
		_, _ = s.DeletePeer(name)
		_, _ = s.RemoveRelayLinks(name)
	}
	peers, _ := s.ListPeers()
	assert.Empty(t, peers)
	links, _ := s.RelayLinks("hub")
	assert.Empty(t, links)
}
