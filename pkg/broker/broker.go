package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"peer-hub/pkg/auth"
	"peer-hub/pkg/model"
	"peer-hub/pkg/protocol"
	"peer-hub/pkg/store"
	"peer-hub/pkg/topology"
	"peer-hub/pkg/transport"
)

// DefaultInterval is the scheduler period when Config.Interval is unset.
const DefaultInterval = 10 * time.Second

type Config struct {
	Interval   time.Duration
	AuthPolicy auth.Policy // nil disables authentication
}

// Broker tracks connected peers, decides how each pair should link up and
// relays traffic for pairs that cannot reach each other.
type Broker struct {
	tr       transport.Transport
	st       store.PeerStore
	interval time.Duration

	policyMu sync.RWMutex
	policy   auth.Policy

	// mu serializes registration, disconnect cleanup and scheduler passes.
	mu          sync.Mutex
	lastVersion uint64
}

// New wires the broker to its transport; disconnect cleanup starts immediately.
func New(tr transport.Transport, st store.PeerStore, cfg Config) *Broker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	b := &Broker{
		tr:       tr,
		st:       st,
		interval: cfg.Interval,
		policy:   cfg.AuthPolicy,
	}
	tr.OnDisconnect(b.HandleDisconnect)
	return b
}

// Run starts the dispatch and scheduler workers and blocks until ctx is done.
func (b *Broker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.dispatchLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.schedule(ctx)
	}()
	wg.Wait()
}

func (b *Broker) dispatchLoop(ctx context.Context) {
	in := b.tr.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			b.dispatch(env)
		}
	}
}

func (b *Broker) schedule(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick()
		}
	}
}

// dispatch handles one inbound message; a bad message never stops the loop.
func (b *Broker) dispatch(env transport.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch panic from=%s msg=%s: %v", env.From, env.Msg, r)
		}
	}()
	var err error
	switch env.Msg.Type {
	case protocol.TypeRegister:
		err = b.handleRegister(env)
	case protocol.TypeForward:
		err = b.handleForward(env)
	case protocol.TypeGetAuthPolicy:
		err = b.handleGetAuthPolicy(env)
	default:
		err = fmt.Errorf("unknown message type %q", env.Msg.Type)
	}
	if err != nil {
		log.Printf("dropped message from=%s %s: %v", env.From, env.Msg, err)
	}
}

func (b *Broker) handleRegister(env transport.Envelope) error {
	var info model.PeerInfo
	if err := env.Msg.Decode(&info); err != nil {
		return err
	}
	if info.Name == "" {
		info.Name = env.From
	}
	if info.Name != env.From {
		return fmt.Errorf("register name %q does not match link %q", info.Name, env.From)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// the link may have dropped while the message sat in the queue
	if !b.tr.Has(env.From) {
		return fmt.Errorf("register from %q: %w", env.From, transport.ErrNoLink)
	}
	changed, err := b.st.UpsertPeer(info)
	if err != nil {
		return fmt.Errorf("store peer: %w", err)
	}
	log.Printf("registered peer=%s local=%s public=%s port=%d lan=%s changed=%v", info.Name, info.LocalIP, info.PublicIP, info.Port, info.LanID, changed)
	if changed {
		b.audit(model.AuditRegister, info.Name, fmt.Sprintf("lan=%s public=%v", info.LanID, info.IsPublicNetwork()))
		return nil
	}
	// an unchanged re-register means the peer reconnected and dropped its relays
	partners, err := b.st.RelayLinks(info.Name)
	if err != nil {
		return fmt.Errorf("relay links: %w", err)
	}
	for _, p := range partners {
		b.send(info.Name, protocol.TypeRelayAdd, protocol.RelayAdd{Name: p})
	}
	return nil
}

func (b *Broker) handleForward(env transport.Envelope) error {
	var fwd protocol.Forward
	if err := env.Msg.Decode(&fwd); err != nil {
		return err
	}
	if _, ok, err := b.st.GetPeer(fwd.To); err != nil || !ok {
		log.Printf("relay miss from=%s to=%s: peer not registered", env.From, fwd.To)
		return nil
	}
	msg, err := protocol.New(protocol.TypeRelay, protocol.Relay{From: env.From, Payload: fwd.Payload})
	if err != nil {
		return err
	}
	if err := b.tr.Send(fwd.To, msg); err != nil {
		log.Printf("relay miss from=%s to=%s: %v", env.From, fwd.To, err)
	}
	return nil
}

func (b *Broker) handleGetAuthPolicy(env transport.Envelope) error {
	msg, err := protocol.New(protocol.TypeAuthPolicy, protocol.AuthPolicy{Data: b.AuthPolicy()})
	if err != nil {
		return err
	}
	return b.tr.Send(env.From, msg)
}

// AuthPolicy returns a copy of the configured credential table, or nil.
func (b *Broker) AuthPolicy() auth.Policy {
	b.policyMu.RLock()
	defer b.policyMu.RUnlock()
	return b.policy.Clone()
}

// SetAuthPolicy replaces the credential table, e.g. with one pushed down to a
// peer hosting this broker.
func (b *Broker) SetAuthPolicy(p auth.Policy) {
	b.policyMu.Lock()
	b.policy = p.Clone()
	b.policyMu.Unlock()
}

// HandleDisconnect removes every trace of name. Unknown names are ignored.
func (b *Broker) HandleDisconnect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed, err := b.st.DeletePeer(name)
	if err != nil {
		log.Printf("disconnect cleanup peer=%s: delete failed: %v", name, err)
	}
	partners, err := b.st.RemoveRelayLinks(name)
	if err != nil {
		log.Printf("disconnect cleanup peer=%s: relay cleanup failed: %v", name, err)
	}
	for _, p := range partners {
		b.send(p, protocol.TypeRelayRemoved, protocol.RelayRemoved{Name: name})
	}
	if removed || len(partners) > 0 {
		log.Printf("peer disconnected: %s relays=%v", name, partners)
		b.audit(model.AuditDisconnect, name, fmt.Sprintf("relays=%v", partners))
	}
}

// Tick runs one scheduler pass if the peer table changed since the previous
// pass. It returns the number of decisions applied.
func (b *Broker) Tick() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, err := b.st.Version()
	if err != nil {
		log.Printf("scheduler: version read failed: %v", err)
		return 0
	}
	if v == b.lastVersion {
		return 0
	}
	peers, err := b.st.ListPeers()
	if err != nil {
		log.Printf("scheduler: list peers failed: %v", err)
		return 0
	}
	b.lastVersion = v
	applied := 0
	for _, d := range topology.Plan(peers) {
		if b.apply(d) {
			applied++
		}
	}
	log.Printf("scheduler pass version=%d peers=%d decisions=%d", v, len(peers), applied)
	return applied
}

func (b *Broker) apply(d topology.Decision) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: pair %s/%s panic: %v", d.A, d.B, r)
			ok = false
		}
	}()
	var err error
	switch d.Kind {
	case topology.LANDirect, topology.PublicDirect:
		err = b.applyDirect(d)
	case topology.RelayPair:
		err = b.applyRelay(d)
	default:
		return false
	}
	if err != nil {
		log.Printf("scheduler: pair %s/%s kind=%s failed: %v", d.A, d.B, d.Kind, err)
		return false
	}
	return true
}

func (b *Broker) applyDirect(d topology.Decision) error {
	relayed, err := b.st.HasRelayLink(d.A, d.B)
	if err != nil {
		return err
	}
	if relayed {
		// a direct path replaces the relay; peers only accept connect for unknown names
		if err := b.st.RemoveRelayLink(d.A, d.B); err != nil {
			return err
		}
		b.send(d.A, protocol.TypeRelayRemoved, protocol.RelayRemoved{Name: d.B})
		b.send(d.B, protocol.TypeRelayRemoved, protocol.RelayRemoved{Name: d.A})
		b.audit(model.AuditRelayTeardown, d.A+"/"+d.B, "replaced by "+d.Kind.String())
	}
	msg, err := protocol.New(protocol.TypeConnect, protocol.Connect{
		Name:   d.Target,
		IP:     d.IP,
		Port:   d.Port,
		Secret: d.Secret,
	})
	if err != nil {
		return err
	}
	log.Printf("scheduler: %s %s -> %s at %s:%d", d.Kind, d.Dialer, d.Target, d.IP, d.Port)
	return b.tr.Send(d.Dialer, msg)
}

func (b *Broker) applyRelay(d topology.Decision) error {
	existed, err := b.st.HasRelayLink(d.A, d.B)
	if err != nil {
		return err
	}
	if err := b.st.AddRelayLink(d.A, d.B); err != nil {
		return err
	}
	b.send(d.A, protocol.TypeRelayAdd, protocol.RelayAdd{Name: d.B})
	b.send(d.B, protocol.TypeRelayAdd, protocol.RelayAdd{Name: d.A})
	if !existed {
		b.audit(model.AuditRelayPair, d.A+"/"+d.B, "")
	}
	return nil
}

func (b *Broker) send(to, msgType string, payload interface{}) {
	msg, err := protocol.New(msgType, payload)
	if err != nil {
		log.Printf("build %s for %s failed: %v", msgType, to, err)
		return
	}
	if err := b.tr.Send(to, msg); err != nil {
		log.Printf("send %s to %s failed: %v", msgType, to, err)
	}
}

func (b *Broker) audit(action, target, detail string) {
	if err := b.st.AppendAudit(model.AuditEntry{
		Actor:     "broker",
		Action:    action,
		Target:    target,
		Detail:    detail,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("audit %s %s failed: %v", action, target, err)
	}
}
