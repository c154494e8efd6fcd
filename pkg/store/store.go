package store

import "peer-hub/pkg/model"

// PeerStore holds the broker's view of the overlay: the PeerInfo table, the
// relay link sets and the audit log. Implementations must be safe for
// concurrent use by the dispatch worker, the scheduler and disconnect callbacks.
type PeerStore interface {
	// UpsertPeer inserts or overwrites a PeerInfo. It reports whether the
	// table changed.
	UpsertPeer(model.PeerInfo) (bool, error)
	// DeletePeer removes a PeerInfo; deleting an absent name is not an error.
	DeletePeer(name string) (bool, error)
	GetPeer(name string) (model.PeerInfo, bool, error)
	ListPeers() ([]model.PeerInfo, error)
	// Version increments on every change to the PeerInfo table.
	Version() (uint64, error)

	AddRelayLink(a, b string) error
	RemoveRelayLink(a, b string) error
	// RemoveRelayLinks drops name from every relay set and returns its former partners.
	RemoveRelayLinks(name string) ([]string, error)
	RelayLinks(name string) ([]string, error)
	HasRelayLink(a, b string) (bool, error)

	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() PeerStore {
	return NewMemoryStore()
}
