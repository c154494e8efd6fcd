package transport

import (
	"errors"
	"sync"

	"peer-hub/pkg/protocol"
)

var (
	ErrNoLink       = errors.New("no link to endpoint")
	ErrUnauthorized = errors.New("endpoint rejected credentials")
	ErrUnreachable  = errors.New("endpoint unreachable")
	ErrClosed       = errors.New("transport closed")
)

// Envelope is one inbound message tagged with the link it arrived on.
type Envelope struct {
	From string
	Msg  protocol.Message
}

// Transport provides named, authenticated point-to-point links.
// Links are bidirectional: the dialer names a link after the endpoint it
// opened, the accepting side after the dialer's own name.
type Transport interface {
	Open(name, address string, port int, secret string) error
	Send(name string, msg protocol.Message) error
	Has(name string) bool
	Inbound() <-chan Envelope
	// OnConnect runs whenever a link is established, before any of its
	// messages are queued.
	OnConnect(fn func(name string))
	// OnDisconnect runs once for every link that is lost.
	OnDisconnect(fn func(name string))
	Close() error
}

type hooks struct {
	mu           sync.RWMutex
	onConnect    []func(string)
	onDisconnect []func(string)
}

func (h *hooks) OnConnect(fn func(name string)) {
	h.mu.Lock()
	h.onConnect = append(h.onConnect, fn)
	h.mu.Unlock()
}

func (h *hooks) OnDisconnect(fn func(name string)) {
	h.mu.Lock()
	h.onDisconnect = append(h.onDisconnect, fn)
	h.mu.Unlock()
}

func (h *hooks) connected(name string) {
	h.mu.RLock()
	fns := append([]func(string){}, h.onConnect...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(name)
	}
}

func (h *hooks) disconnected(name string) {
	h.mu.RLock()
	fns := append([]func(string){}, h.onDisconnect...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(name)
	}
}
