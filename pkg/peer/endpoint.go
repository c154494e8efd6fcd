package peer

import (
	"encoding/json"

	"peer-hub/pkg/protocol"
	"peer-hub/pkg/transport"
)

// LinkKind says how a remote peer is reached.
type LinkKind int

const (
	Direct LinkKind = iota
	Relayed
)

func (k LinkKind) String() string {
	if k == Relayed {
		return "relayed"
	}
	return "direct"
}

// Endpoint is an entry in the peer's routing table.
type Endpoint interface {
	Send(payload json.RawMessage) error
	Kind() LinkKind
}

type directEndpoint struct {
	name string
	tr   transport.Transport
}

func (d *directEndpoint) Send(payload json.RawMessage) error {
	msg, err := protocol.New(protocol.TypeData, payload)
	if err != nil {
		return err
	}
	return d.tr.Send(d.name, msg)
}

func (d *directEndpoint) Kind() LinkKind { return Direct }

// Forwarder reaches target by asking the broker to relay each payload.
type Forwarder struct {
	target string
	peer   *Peer
}

func (f *Forwarder) Send(payload json.RawMessage) error {
	msg, err := protocol.New(protocol.TypeForward, protocol.Forward{To: f.target, Payload: payload})
	if err != nil {
		return err
	}
	return f.peer.tr.Send(protocol.BrokerName, msg)
}

func (f *Forwarder) Kind() LinkKind { return Relayed }
