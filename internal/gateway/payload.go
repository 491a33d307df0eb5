// Package gateway implements the distributed gateway relay: the contract
// between an upstream "leader" node that owns the real gateway connection
// and N downstream "worker" nodes that consume dispatch events via an
// external broker.
package gateway

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Opcode mirrors the handful of gateway opcodes the core needs to
// recognize. Everything else passes through opaque — a GatewayPayload is
// characterized by its opcode, an optional sequence, and optional inner
// data, and the core never inspects more than that.
type Opcode int

const (
	OpDispatch Opcode = 0
	OpHeartbeat Opcode = 1
	OpIdentify  Opcode = 2
	OpResume    Opcode = 6
	OpReconnect Opcode = 7
	OpHello     Opcode = 10
)

// Payload is the envelope the core reads three fields from: Op, Sequence,
// Data. It never inspects the dispatch body beyond detecting a Ready event
// (to capture the session id) — JSON deserialization of dispatch payloads
// is out of scope.
type Payload struct {
	Op       Opcode          `json:"op"`
	Sequence *int64          `json:"s,omitempty"`
	Type     string          `json:"t,omitempty"`
	Data     json.RawMessage `json:"d,omitempty"`
}

// readyDispatch holds the only field the relay needs to read out of a
// dispatch body: the Ready event's session_id, used to seed the
// downstream client's local session state.
type readyDispatch struct {
	SessionID string `json:"session_id"`
}

// SessionIDFromReady returns the session id carried by a Ready dispatch,
// or "" if payload isn't one.
func SessionIDFromReady(p *Payload) (string, bool) {
	if p.Op != OpDispatch || p.Type != "READY" || len(p.Data) == 0 {
		return "", false
	}
	var ready readyDispatch
	if err := json.Unmarshal(p.Data, &ready); err != nil {
		return "", false
	}
	return ready.SessionID, ready.SessionID != ""
}

// EncodePayload serializes a Payload for the broker.
func EncodePayload(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses broker bytes into a Payload. A parse failure is a
// ProtocolViolation: logged and dropped by the caller, never fatal to the
// relay.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ControlOp is the NodeControl operation.
type ControlOp string

const (
	ControlReconnect ControlOp = "RECONNECT"
	ControlClose     ControlOp = "CLOSE"
)

// NodeControl is the out-of-band control-plane message between downstream
// and upstream nodes: reconnect/close, tagged by shard, never correlated
// with any payload sequence.
type NodeControl struct {
	Op         ControlOp `json:"op"`
	ShardIndex uint32    `json:"shardIndex"`
}

// EncodeControl serializes a NodeControl for the broker.
func EncodeControl(c *NodeControl) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeControl parses broker bytes into a NodeControl.
func DecodeControl(raw []byte) (*NodeControl, error) {
	var c NodeControl
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PartitionKey is the typical broker partitioning key for a shard:
// "<shardIndex>:<shardCount>".
func PartitionKey(shardIndex, shardCount uint32) string {
	return strconv.FormatUint(uint64(shardIndex), 10) + ":" + strconv.FormatUint(uint64(shardCount), 10)
}
