package domain

import (
	"bytes"
	"encoding/json"
)

// Frame type values exchanged over the push channel. Anything else is a
// data message.
const (
	FrameTypePing          = "ping"
	FrameTypePong          = "pong"
	FrameTypeConnectionAck = "connection_ack"
)

// PingFrame is the client heartbeat. T is the send time in unix
// milliseconds.
type PingFrame struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

// ControlFrame is the envelope the dispatcher decodes first to classify
// a candidate. Authenticated is only meaningful on connection_ack.
type ControlFrame struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
}

// SplitPayload turns one raw JSON payload into independent candidate
// events: a single value yields one candidate, an array yields its
// elements in order.
func SplitPayload(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}
	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, err
		}
		return elems, nil
	}
	var single json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []json.RawMessage{single}, nil
}
