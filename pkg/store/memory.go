package store

import (
	"sort"
	"sync"
	"time"

	"peer-hub/pkg/model"
)

const maxAudit = 1000

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	peers   map[string]model.PeerInfo
	relays  map[string]map[string]struct{}
	version uint64
	audit   []model.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		peers:  make(map[string]model.PeerInfo),
		relays: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) UpsertPeer(p model.PeerInfo) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.peers[p.Name]; ok && cur.Equal(p) {
		return false, nil
	}
	m.peers[p.Name] = p
	m.version++
	return true, nil
}

func (m *MemoryStore) DeletePeer(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[name]; !ok {
		return false, nil
	}
	delete(m.peers, name)
	m.version++
	return true, nil
}

func (m *MemoryStore) GetPeer(name string) (model.PeerInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[name]
	return p, ok, nil
}

func (m *MemoryStore) ListPeers() ([]model.PeerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PeerInfo, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Version() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *MemoryStore) AddRelayLink(a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link(a, b)
	m.link(b, a)
	return nil
}

func (m *MemoryStore) link(from, to string) {
	set := m.relays[from]
	if set == nil {
		set = make(map[string]struct{})
		m.relays[from] = set
	}
	set[to] = struct{}{}
}

func (m *MemoryStore) unlink(from, to string) {
	set := m.relays[from]
	if set == nil {
		return
	}
	delete(set, to)
	if len(set) == 0 {
		delete(m.relays, from)
	}
}

func (m *MemoryStore) RemoveRelayLink(a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlink(a, b)
	m.unlink(b, a)
	return nil
}

func (m *MemoryStore) RemoveRelayLinks(name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	partners := sortedKeys(m.relays[name])
	for _, p := range partners {
		m.unlink(p, name)
	}
	delete(m.relays, name)
	// sets can only reference name through a partner, but sweep in case a
	// one-sided entry slipped in
	for other := range m.relays {
		m.unlink(other, name)
	}
	return partners, nil
}

func (m *MemoryStore) RelayLinks(name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.relays[name]), nil
}

func (m *MemoryStore) HasRelayLink(a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[a][b]
	return ok, nil
}

func (m *MemoryStore) AppendAudit(entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.audit = append(m.audit, entry)
	if len(m.audit) > maxAudit {
		m.audit = m.audit[len(m.audit)-maxAudit:]
	}
	return nil
}

func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]model.AuditEntry, 0, limit)
	start := len(m.audit) - limit
	for i := start; i < len(m.audit); i++ {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
