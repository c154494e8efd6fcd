package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"peer-hub/pkg/protocol"
	"peer-hub/pkg/queue"
)

// Network connects Memory transports by address, for tests and single-process setups.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*Memory
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Memory)}
}

// Listen creates an endpoint named name reachable at address:port.
// An empty secret accepts every dialer.
func (n *Network) Listen(name, address string, port int, secret string) *Memory {
	m := &Memory{
		name:    name,
		secret:  secret,
		addr:    hostPort(address, port),
		net:     n,
		links:   make(map[string]*Memory),
		inbound: queue.New[Envelope](),
	}
	n.mu.Lock()
	n.nodes[m.addr] = m
	n.mu.Unlock()
	return m
}

func (n *Network) lookup(addr string) *Memory {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[addr]
}

func (n *Network) remove(m *Memory) {
	n.mu.Lock()
	if n.nodes[m.addr] == m {
		delete(n.nodes, m.addr)
	}
	n.mu.Unlock()
}

// Memory is an in-process Transport.
type Memory struct {
	hooks
	name    string
	secret  string
	addr    string
	net     *Network
	mu      sync.Mutex
	links   map[string]*Memory
	opens   int
	closed  bool
	inbound *queue.Queue[Envelope]
}

var _ Transport = (*Memory)(nil)

// Name returns the name this endpoint presents to the peers it dials.
func (m *Memory) Name() string { return m.name }

func (m *Memory) Open(name, address string, port int, secret string) error {
	target := m.net.lookup(hostPort(address, port))
	if target == nil || target.isClosed() {
		return fmt.Errorf("open %s at %s: %w", name, hostPort(address, port), ErrUnreachable)
	}
	if target.secret != "" && target.secret != secret {
		return fmt.Errorf("open %s: %w", name, ErrUnauthorized)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.links[name] = target
	m.opens++
	m.mu.Unlock()

	target.mu.Lock()
	target.links[m.name] = m
	target.mu.Unlock()

	m.connected(name)
	target.connected(m.name)
	return nil
}

func (m *Memory) Send(name string, msg protocol.Message) error {
	m.mu.Lock()
	target := m.links[name]
	m.mu.Unlock()
	if target == nil {
		return fmt.Errorf("send to %s: %w", name, ErrNoLink)
	}
	target.inbound.Push(Envelope{From: m.peerName(target), Msg: msg})
	return nil
}

// peerName is the name target knows this endpoint by.
func (m *Memory) peerName(target *Memory) string {
	target.mu.Lock()
	defer target.mu.Unlock()
	for n, l := range target.links {
		if l == m {
			return n
		}
	}
	return m.name
}

func (m *Memory) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[name]
	return ok
}

func (m *Memory) Inbound() <-chan Envelope {
	return m.inbound.Out()
}

// Opens counts successful Open calls.
func (m *Memory) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Drop severs the link to name and notifies both ends.
func (m *Memory) Drop(name string) {
	m.mu.Lock()
	target := m.links[name]
	delete(m.links, name)
	m.mu.Unlock()
	if target == nil {
		return
	}
	remote := ""
	target.mu.Lock()
	for n, l := range target.links {
		if l == m {
			remote = n
			delete(target.links, n)
			break
		}
	}
	target.mu.Unlock()
	m.disconnected(name)
	if remote != "" {
		target.disconnected(remote)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	names := make([]string, 0, len(m.links))
	for n := range m.links {
		names = append(names, n)
	}
	m.mu.Unlock()
	for _, n := range names {
		m.Drop(n)
	}
	m.net.remove(m)
	m.inbound.Close()
	return nil
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func hostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
