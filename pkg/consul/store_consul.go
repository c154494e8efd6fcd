//go:build consul

package consul

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"peer-hub/pkg/model"
)

// Store keeps the broker tables in Consul KV so operators and other tooling
// can observe the overlay.
type Store struct {
	cli *consulapi.Client

	// writes are serialized so read-modify-write sequences stay consistent
	mu      sync.Mutex
	version uint64
}

const (
	peerPrefix  = "peer-hub/peers/"
	relayPrefix = "peer-hub/relays/"
	auditPrefix = "peer-hub/audit/"
	versionKey  = "peer-hub/version"
)

// NewStore connects to Consul and clears peer and relay entries left by a
// previous broker run; they cannot belong to connected peers.
func NewStore(addr string) (*Store, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	s := &Store{cli: cli}
	for _, prefix := range []string{peerPrefix, relayPrefix} {
		if _, err := cli.KV().DeleteTree(prefix, nil); err != nil {
			return nil, fmt.Errorf("reset %s: %w", prefix, err)
		}
	}
	return s, nil
}

func (s *Store) UpsertPeer(p model.PeerInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok, err := s.getPeer(p.Name)
	if err != nil {
		return false, err
	}
	if ok && cur.Equal(p) {
		return false, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: peerPrefix + p.Name, Value: b}, nil); err != nil {
		return false, err
	}
	return true, s.bumpLocked()
}

func (s *Store) DeletePeer(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok, err := s.getPeer(name)
	if err != nil || !ok {
		return false, err
	}
	if _, err := s.cli.KV().Delete(peerPrefix+name, nil); err != nil {
		return false, err
	}
	return true, s.bumpLocked()
}

func (s *Store) bumpLocked() error {
	s.version++
	_, err := s.cli.KV().Put(&consulapi.KVPair{Key: versionKey, Value: []byte(fmt.Sprintf("%d", s.version))}, nil)
	return err
}

func (s *Store) GetPeer(name string) (model.PeerInfo, bool, error) {
	return s.getPeer(name)
}

func (s *Store) getPeer(name string) (model.PeerInfo, bool, error) {
	kv, _, err := s.cli.KV().Get(peerPrefix+name, nil)
	if err != nil || kv == nil {
		return model.PeerInfo{}, false, err
	}
	var p model.PeerInfo
	if err := json.Unmarshal(kv.Value, &p); err != nil {
		return model.PeerInfo{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListPeers() ([]model.PeerInfo, error) {
	pairs, _, err := s.cli.KV().List(peerPrefix, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.PeerInfo, 0, len(pairs))
	for _, kv := range pairs {
		var p model.PeerInfo
		if err := json.Unmarshal(kv.Value, &p); err == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Version() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func relayKey(from, to string) string {
	return relayPrefix + from + "/" + to
}

func (s *Store) AddRelayLink(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []string{relayKey(a, b), relayKey(b, a)} {
		if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: k, Value: []byte("1")}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RemoveRelayLink(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []string{relayKey(a, b), relayKey(b, a)} {
		if _, err := s.cli.KV().Delete(k, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RemoveRelayLinks(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	partners, err := s.relayLinks(name)
	if err != nil {
		return nil, err
	}
	for _, p := range partners {
		if _, err := s.cli.KV().Delete(relayKey(p, name), nil); err != nil {
			return nil, err
		}
	}
	if _, err := s.cli.KV().DeleteTree(relayPrefix+name+"/", nil); err != nil {
		return nil, err
	}
	return partners, nil
}

func (s *Store) RelayLinks(name string) ([]string, error) {
	return s.relayLinks(name)
}

func (s *Store) relayLinks(name string) ([]string, error) {
	prefix := relayPrefix + name + "/"
	keys, _, err := s.cli.KV().Keys(prefix, "", nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) HasRelayLink(a, b string) (bool, error) {
	kv, _, err := s.cli.KV().Get(relayKey(a, b), nil)
	if err != nil {
		return false, err
	}
	return kv != nil, nil
}

func (s *Store) AppendAudit(entry model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d-%s", auditPrefix, entry.Timestamp.UnixNano(), entry.Target)
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil)
	return err
}

func (s *Store) ListAudit(limit int) ([]model.AuditEntry, error) {
	pairs, _, err := s.cli.KV().List(auditPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.AuditEntry
	for _, p := range pairs {
		var e model.AuditEntry
		if err := json.Unmarshal(p.Value, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
