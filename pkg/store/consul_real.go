//go:build consul

package store

import (
	"peer-hub/pkg/consul"
)

// NewConsulStore creates a Consul-backed store (requires build tag consul).
func NewConsulStore(addr string) (PeerStore, error) {
	s, err := consul.NewStore(addr)
	if err != nil {
		return nil, err
	}
	return s, nil
}
