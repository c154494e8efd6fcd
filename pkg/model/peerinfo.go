package model

// PeerInfo describes how a peer can be reached. It is published to the broker
// on join and on every reconnect.
type PeerInfo struct {
	Name          string   `json:"name"`
	LocalIP       string   `json:"localIp"`
	PublicIP      string   `json:"publicIp,omitempty"` // empty: not reachable from outside its LAN
	Port          int      `json:"port"`               // inbound link listener
	SessionSecret string   `json:"sessionSecret"`
	LanID         string   `json:"lanId,omitempty"`
	WhiteList     []string `json:"whiteList,omitempty"`
	BlackList     []string `json:"blackList,omitempty"`
}

// IsPublicNetwork reports whether the peer announced a public address.
func (p PeerInfo) IsPublicNetwork() bool {
	return p.PublicIP != ""
}

// Allows reports whether p accepts being paired with the named peer.
func (p PeerInfo) Allows(name string) bool {
	if contains(p.BlackList, name) {
		return false
	}
	if len(p.WhiteList) > 0 && !contains(p.WhiteList, name) {
		return false
	}
	return true
}

// Equal compares every announced field.
func (p PeerInfo) Equal(o PeerInfo) bool {
	if p.Name != o.Name || p.LocalIP != o.LocalIP || p.PublicIP != o.PublicIP || p.Port != o.Port {
		return false
	}
	if p.SessionSecret != o.SessionSecret || p.LanID != o.LanID {
		return false
	}
	return equalStrings(p.WhiteList, o.WhiteList) && equalStrings(p.BlackList, o.BlackList)
}

// Redacted returns a copy safe to expose over the status API.
func (p PeerInfo) Redacted() PeerInfo {
	p.SessionSecret = ""
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
