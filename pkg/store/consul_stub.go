//go:build !consul

package store

import (
	"log"
)

// NewConsulStore returns a memory store when the consul build tag is not enabled.
func NewConsulStore(addr string) (PeerStore, error) {
	log.Printf("consul store requested (addr=%s) but consul build tag not enabled; using memory store", addr)
	return NewMemoryStore(), nil
}
