package topology

import (
	"sort"

	"peer-hub/pkg/model"
)

// Kind is the link the broker chooses for a pair of peers.
type Kind int

const (
	Skip Kind = iota
	LANDirect
	PublicDirect
	RelayPair
)

func (k Kind) String() string {
	switch k {
	case Skip:
		return "skip"
	case LANDirect:
		return "lan-direct"
	case PublicDirect:
		return "public-direct"
	case RelayPair:
		return "relay-pair"
	}
	return "unknown"
}

// Decision is the outcome for one unordered pair. For direct kinds Dialer is
// told to connect to Target at IP:Port with Secret; for RelayPair both A and B
// install a relay to each other.
type Decision struct {
	Kind   Kind
	A, B   string
	Dialer string
	Target string
	IP     string
	Port   int
	Secret string
}

// Decide applies the pairing rules in order; the first match wins:
// black list, white list, shared LAN id, public address on a, public
// address on b, relay.
func Decide(a, b model.PeerInfo) Decision {
	d := Decision{A: a.Name, B: b.Name}
	if !a.Allows(b.Name) || !b.Allows(a.Name) {
		d.Kind = Skip
		return d
	}
	switch {
	case a.LanID == b.LanID:
		return direct(d, LANDirect, a, b, b.LocalIP)
	case a.IsPublicNetwork():
		// the public side is always the target so only one side dials
		return direct(d, PublicDirect, b, a, a.PublicIP)
	case b.IsPublicNetwork():
		return direct(d, PublicDirect, a, b, b.PublicIP)
	default:
		d.Kind = RelayPair
		return d
	}
}

func direct(d Decision, kind Kind, dialer, target model.PeerInfo, ip string) Decision {
	d.Kind = kind
	d.Dialer = dialer.Name
	d.Target = target.Name
	d.IP = ip
	d.Port = target.Port
	d.Secret = target.SessionSecret
	return d
}

// Plan evaluates every unordered pair of peers, ordered by name so the
// smaller name is always a. Skipped pairs are omitted.
func Plan(peers []model.PeerInfo) []Decision {
	sorted := append([]model.PeerInfo(nil), peers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var out []Decision
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			d := Decide(sorted[i], sorted[j])
			if d.Kind == Skip {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}
