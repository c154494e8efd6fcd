package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	msg, err := New(TypeConnect, Connect{Name: "bob", IP: "10.0.0.2", Port: 7000, Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, TypeConnect, msg.Type)

	var c Connect
	require.NoError(t, msg.Decode(&c))
	assert.Equal(t, Connect{Name: "bob", IP: "10.0.0.2", Port: 7000, Secret: "s"}, c)
}

func TestNewWithoutPayload(t *testing.T) {
	msg, err := New(TypeGetAuthPolicy, nil)
	require.NoError(t, err)
	assert.Empty(t, msg.Payload)

	var v struct{}
	assert.Error(t, msg.Decode(&v))
}

func TestNewKeepsRawPayload(t *testing.T) {
	raw := json.RawMessage(`{"hello":"world"}`)
	msg, err := New(TypeData, raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
}

func TestDecodeMalformed(t *testing.T) {
	msg := Message{Type: TypeRegister, Payload: json.RawMessage(`{"name":`)}
	var v map[string]interface{}
	assert.Error(t, msg.Decode(&v))
}

func TestAuthPolicyNullWhenDisabled(t *testing.T) {
	msg, err := New(TypeAuthPolicy, AuthPolicy{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":null}`, string(msg.Payload))
}
