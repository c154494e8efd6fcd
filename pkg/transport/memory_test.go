package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-hub/pkg/protocol"
)

func recv(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestMemoryOpenAndSend(t *testing.T) {
	n := NewNetwork()
	hub := n.Listen("broker", "10.0.0.1", 9000, "hub-secret")
	alice := n.Listen("alice", "10.0.0.2", 7000, "")

	require.NoError(t, alice.Open(protocol.BrokerName, "10.0.0.1", 9000, "hub-secret"))
	assert.True(t, alice.Has(protocol.BrokerName))
	assert.True(t, hub.Has("alice"))

	msg, err := protocol.New(protocol.TypeGetAuthPolicy, nil)
	require.NoError(t, err)
	require.NoError(t, alice.Send(protocol.BrokerName, msg))
	env := recv(t, hub.Inbound())
	assert.Equal(t, "alice", env.From)
	assert.Equal(t, protocol.TypeGetAuthPolicy, env.Msg.Type)

	require.NoError(t, hub.Send("alice", msg))
	env = recv(t, alice.Inbound())
	assert.Equal(t, protocol.BrokerName, env.From)
}

func TestMemoryOpenErrors(t *testing.T) {
	n := NewNetwork()
	n.Listen("broker", "10.0.0.1", 9000, "hub-secret")
	alice := n.Listen("alice", "10.0.0.2", 7000, "")

	assert.ErrorIs(t, alice.Open("broker", "10.0.0.1", 9000, "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, alice.Open("nobody", "10.9.9.9", 1, ""), ErrUnreachable)
	assert.ErrorIs(t, alice.Send("nobody", protocol.Message{Type: protocol.TypeData}), ErrNoLink)
	assert.Equal(t, 0, alice.Opens())
}

func TestMemoryDropNotifiesBothEnds(t *testing.T) {
	n := NewNetwork()
	hub := n.Listen("broker", "10.0.0.1", 9000, "")
	alice := n.Listen("alice", "10.0.0.2", 7000, "")

	var mu sync.Mutex
	var events []string
	hub.OnDisconnect(func(name string) {
		mu.Lock()
		events = append(events, "hub:"+name)
		mu.Unlock()
	})
	alice.OnDisconnect(func(name string) {
		mu.Lock()
		events = append(events, "alice:"+name)
		mu.Unlock()
	})
	require.NoError(t, alice.Open("broker", "10.0.0.1", 9000, ""))

	alice.Drop("broker")
	assert.False(t, alice.Has("broker"))
	assert.False(t, hub.Has("alice"))
	mu.Lock()
	assert.ElementsMatch(t, []string{"hub:alice", "alice:broker"}, events)
	mu.Unlock()

	// a second drop is a no-op
	alice.Drop("broker")
}

func TestMemoryOnConnectBeforeMessages(t *testing.T) {
	n := NewNetwork()
	hub := n.Listen("broker", "10.0.0.1", 9000, "")
	alice := n.Listen("alice", "10.0.0.2", 7000, "")

	var connected []string
	hub.OnConnect(func(name string) { connected = append(connected, name) })
	require.NoError(t, alice.Open("broker", "10.0.0.1", 9000, ""))
	assert.Equal(t, []string{"alice"}, connected)
}

func TestMemoryCloseUnreachable(t *testing.T) {
	n := NewNetwork()
	hub := n.Listen("broker", "10.0.0.1", 9000, "")
	alice := n.Listen("alice", "10.0.0.2", 7000, "")
	require.NoError(t, alice.Open("broker", "10.0.0.1", 9000, ""))

	require.NoError(t, hub.Close())
	assert.False(t, alice.Has("broker"))
	assert.ErrorIs(t, alice.Open("broker", "10.0.0.1", 9000, ""), ErrUnreachable)
}
