package model

import "time"

// Audit actions recorded by the broker.
const (
	AuditRegister      = "register"
	AuditDisconnect    = "disconnect"
	AuditRelayPair     = "relay_pair"
	AuditRelayTeardown = "relay_teardown"
)

// AuditEntry captures a change to the broker's view of the overlay.
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
