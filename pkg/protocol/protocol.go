package protocol

import (
	"encoding/json"
	"fmt"
)

// BrokerName is the endpoint name every peer uses for its broker link.
const BrokerName = "broker"

// Message types exchanged between broker and peers.
const (
	TypeRegister      = "register"        // peer -> broker, payload model.PeerInfo
	TypeForward       = "forward"         // peer -> broker
	TypeGetAuthPolicy = "get-auth-policy" // peer -> broker, no payload
	TypeAuthPolicy    = "auth-policy"     // broker -> peer
	TypeConnect       = "connect"         // broker -> peer
	TypeRelayAdd      = "relay-add"       // broker -> peer
	TypeRelayRemoved  = "relay-removed"   // broker -> peer
	TypeRelay         = "relay"           // broker -> peer
	TypeData          = "data"            // peer -> peer, opaque application payload
)

// Message is the envelope carried by every link.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Forward asks the broker to relay Payload to peer To.
type Forward struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// Relay carries a forwarded payload together with the original sender.
type Relay struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Connect instructs a peer to dial another peer directly.
type Connect struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	Secret string `json:"secret"`
}

// RelayAdd instructs a peer to reach Name through the broker.
type RelayAdd struct {
	Name string `json:"name"`
}

// RelayRemoved tells a peer that its relay to Name is gone.
type RelayRemoved struct {
	Name string `json:"name"`
}

// AuthPolicy carries the broker's credential table (username -> bcrypt hash).
// Data is nil when authentication is disabled.
type AuthPolicy struct {
	Data map[string]string `json:"data"`
}

// New builds a message of the given type. A nil payload leaves Payload empty.
func New(msgType string, payload interface{}) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// String renders the raw message for logs.
func (m Message) String() string {
	return fmt.Sprintf("type=%s payload=%s", m.Type, string(m.Payload))
}
