package peer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"peer-hub/pkg/auth"
	"peer-hub/pkg/journal"
	"peer-hub/pkg/model"
	"peer-hub/pkg/protocol"
	"peer-hub/pkg/queue"
	"peer-hub/pkg/transport"
)

var ErrUnknownPeer = errors.New("no route to peer")

type Config struct {
	Name          string
	LocalIP       string
	PublicIP      string
	LanID         string
	SessionSecret string
	Port          int
	WhiteList     []string
	BlackList     []string

	Journal      *journal.Journal
	OnAuthPolicy func(auth.Policy)
}

// Message is an application payload received from another peer.
type Message struct {
	From    string
	Payload json.RawMessage
	Relayed bool
}

// Peer joins the overlay through a broker and keeps a routing table of
// direct links and broker relays to the other peers.
type Peer struct {
	tr           transport.Transport
	info         model.PeerInfo
	journal      *journal.Journal
	onAuthPolicy func(auth.Policy)

	mu        sync.Mutex
	endpoints map[string]Endpoint
	policy    auth.Policy
	joined    bool

	inbound *queue.Queue[Message]
}

// New fills a missing name with a UUID and a missing session secret with
// random bytes, then hooks the peer into tr's link events.
func New(tr transport.Transport, cfg Config) *Peer {
	if cfg.Name == "" {
		cfg.Name = uuid.NewString()
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = NewSecret()
	}
	p := &Peer{
		tr: tr,
		info: model.PeerInfo{
			Name:          cfg.Name,
			LocalIP:       cfg.LocalIP,
			PublicIP:      cfg.PublicIP,
			Port:          cfg.Port,
			SessionSecret: cfg.SessionSecret,
			LanID:         cfg.LanID,
			WhiteList:     cfg.WhiteList,
			BlackList:     cfg.BlackList,
		},
		journal:      cfg.Journal,
		onAuthPolicy: cfg.OnAuthPolicy,
		endpoints:    make(map[string]Endpoint),
		inbound:      queue.New[Message](),
	}
	tr.OnConnect(p.linkUp)
	tr.OnDisconnect(p.linkDown)
	return p
}

// NewSecret returns 32 random bytes, hex encoded.
func NewSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session secret: %v", err))
	}
	return hex.EncodeToString(b)
}

// Join opens the broker link and announces this peer. Once joined, every
// re-established broker link announces again.
func (p *Peer) Join(address string, port int, secret string) error {
	if err := p.tr.Open(protocol.BrokerName, address, port, secret); err != nil {
		return fmt.Errorf("join broker %s:%d: %w", address, port, err)
	}
	if err := p.announce(); err != nil {
		return err
	}
	p.mu.Lock()
	p.joined = true
	p.mu.Unlock()
	log.Printf("joined broker %s:%d as %s", address, port, p.info.Name)
	return nil
}

func (p *Peer) announce() error {
	reg, err := protocol.New(protocol.TypeRegister, p.info)
	if err != nil {
		return err
	}
	if err := p.tr.Send(protocol.BrokerName, reg); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	get, _ := protocol.New(protocol.TypeGetAuthPolicy, nil)
	if err := p.tr.Send(protocol.BrokerName, get); err != nil {
		return fmt.Errorf("get auth policy: %w", err)
	}
	return nil
}

// Run dispatches inbound link traffic until ctx is done, then closes Inbound.
func (p *Peer) Run(ctx context.Context) {
	defer p.inbound.Close()
	in := p.tr.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			p.dispatch(env)
		}
	}
}

func (p *Peer) dispatch(env transport.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("peer dispatch panic from=%s msg=%s: %v", env.From, env.Msg, r)
		}
	}()
	if env.From != protocol.BrokerName {
		if env.Msg.Type != protocol.TypeData {
			log.Printf("ignored %s from peer %s", env.Msg.Type, env.From)
			return
		}
		p.inbound.Push(Message{From: env.From, Payload: env.Msg.Payload})
		return
	}
	if err := p.handleCommand(env.Msg); err != nil {
		log.Printf("dropped broker message %s: %v", env.Msg, err)
	}
}

func (p *Peer) handleCommand(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeConnect:
		var c protocol.Connect
		if err := msg.Decode(&c); err != nil {
			return err
		}
		return p.connect(c)
	case protocol.TypeRelayAdd:
		var ra protocol.RelayAdd
		if err := msg.Decode(&ra); err != nil {
			return err
		}
		p.addRelay(ra.Name)
	case protocol.TypeRelayRemoved:
		var rr protocol.RelayRemoved
		if err := msg.Decode(&rr); err != nil {
			return err
		}
		p.removeRelay(rr.Name)
	case protocol.TypeAuthPolicy:
		var ap protocol.AuthPolicy
		if err := msg.Decode(&ap); err != nil {
			return err
		}
		p.setAuthPolicy(auth.Policy(ap.Data))
	case protocol.TypeRelay:
		var r protocol.Relay
		if err := msg.Decode(&r); err != nil {
			return err
		}
		p.inbound.Push(Message{From: r.From, Payload: r.Payload, Relayed: true})
	default:
		return fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return nil
}

func (p *Peer) connect(c protocol.Connect) error {
	if c.Name == "" || c.Name == p.info.Name {
		return fmt.Errorf("bad connect target %q", c.Name)
	}
	p.mu.Lock()
	_, exists := p.endpoints[c.Name]
	p.mu.Unlock()
	if exists {
		return nil
	}
	if err := p.tr.Open(c.Name, c.IP, c.Port, c.Secret); err != nil {
		return fmt.Errorf("connect %s at %s:%d: %w", c.Name, c.IP, c.Port, err)
	}
	log.Printf("direct link to %s at %s:%d", c.Name, c.IP, c.Port)
	return nil
}

func (p *Peer) addRelay(name string) {
	p.mu.Lock()
	if _, exists := p.endpoints[name]; exists {
		p.mu.Unlock()
		return
	}
	p.endpoints[name] = &Forwarder{target: name, peer: p}
	p.mu.Unlock()
	log.Printf("relay to %s via broker", name)
	p.journal.Record(journal.EventRelayAdd, name, "")
}

func (p *Peer) removeRelay(name string) {
	p.mu.Lock()
	ep, ok := p.endpoints[name]
	if !ok || ep.Kind() != Relayed {
		p.mu.Unlock()
		return
	}
	delete(p.endpoints, name)
	p.mu.Unlock()
	log.Printf("relay to %s removed", name)
	p.journal.Record(journal.EventRelayRemoved, name, "")
}

func (p *Peer) setAuthPolicy(policy auth.Policy) {
	p.mu.Lock()
	p.policy = policy
	fn := p.onAuthPolicy
	p.mu.Unlock()
	if fn != nil {
		fn(policy.Clone())
	}
}

// linkUp runs on the transport's goroutine for every new link.
func (p *Peer) linkUp(name string) {
	if name == protocol.BrokerName {
		p.mu.Lock()
		joined := p.joined
		p.mu.Unlock()
		if joined {
			log.Printf("broker link restored, announcing %s", p.info.Name)
			if err := p.announce(); err != nil {
				log.Printf("re-announce failed: %v", err)
			}
		}
		return
	}
	p.mu.Lock()
	p.endpoints[name] = &directEndpoint{name: name, tr: p.tr}
	p.mu.Unlock()
	p.journal.Record(journal.EventDirect, name, "")
}

func (p *Peer) linkDown(name string) {
	if name == protocol.BrokerName {
		var dropped []string
		p.mu.Lock()
		for n, ep := range p.endpoints {
			if ep.Kind() == Relayed {
				delete(p.endpoints, n)
				dropped = append(dropped, n)
			}
		}
		p.mu.Unlock()
		log.Printf("broker link lost, dropped relays=%v", dropped)
		p.journal.Record(journal.EventDisconnect, protocol.BrokerName, fmt.Sprintf("relays=%v", dropped))
		return
	}
	p.mu.Lock()
	ep, ok := p.endpoints[name]
	ok = ok && ep.Kind() == Direct
	if ok {
		delete(p.endpoints, name)
	}
	p.mu.Unlock()
	if ok {
		log.Printf("direct link to %s lost", name)
		p.journal.Record(journal.EventDisconnect, name, "")
	}
}

// Send delivers payload to name over whichever route the table holds.
// Payloads that are not json.RawMessage are JSON encoded.
func (p *Peer) Send(name string, payload any) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	p.mu.Lock()
	ep := p.endpoints[name]
	p.mu.Unlock()
	if ep == nil {
		return fmt.Errorf("send to %s: %w", name, ErrUnknownPeer)
	}
	return ep.Send(raw)
}

// Inbound delivers application messages from direct links and relays.
func (p *Peer) Inbound() <-chan Message {
	return p.inbound.Out()
}

// Info is the PeerInfo announced to the broker.
func (p *Peer) Info() model.PeerInfo {
	return p.info
}

// Links snapshots the routing table.
func (p *Peer) Links() map[string]LinkKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]LinkKind, len(p.endpoints))
	for n, ep := range p.endpoints {
		out[n] = ep.Kind()
	}
	return out
}

// AuthPolicy returns the last table received from the broker, nil when
// authentication is disabled or no answer has arrived yet.
func (p *Peer) AuthPolicy() auth.Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy.Clone()
}
