package wire

import (
	"encoding/json"
	"fmt"

	"odin-sync/internal/schema"
)

// Message type tags, see spec §6 "Wire Protocol".
const (
	TypeConnect             = "connect"
	TypePush                = "push"
	TypePing                = "ping"
	TypePatch               = "patch"
	TypePushResult           = "push_result"
	TypePong                 = "pong"
	TypeIncompatibilityError = "incompatibility_error"
	TypeData                 = "data"
	TypeError                = "error"
)

// Incompatibility reasons, see spec §6.
const (
	ReasonClientTooOld     = "clientTooOld"
	ReasonServerTooOld     = "serverTooOld"
	ReasonInvalidRecord    = "invalidRecord"
	ReasonInvalidOperation = "invalidOperation"
	ReasonRoomNotFound     = "roomNotFound"
)

// ConnectRequest is the client->server connect message.
type ConnectRequest struct {
	Type             string                 `json:"type"`
	ConnectRequestID string                 `json:"connect_request_id"`
	ProtocolVersion  int                    `json:"protocol_version"`
	Schema           schema.SerializedSchema `json:"schema"`
	LastServerClock  uint64                 `json:"last_server_clock"`
}

// PushRequest is the client->server push message.
type PushRequest struct {
	Type        string   `json:"type"`
	ClientClock uint64   `json:"client_clock"`
	Diff        DiffMap  `json:"diff,omitempty"`
	Presence    *RecordOp `json:"presence,omitempty"`
}

// PingRequest is the client->server keepalive message.
type PingRequest struct {
	Type string `json:"type"`
}

// HydrationType discriminates how a connecting client is brought up to
// date. See spec glossary.
type HydrationType string

const (
	WipeAll      HydrationType = "wipe_all"
	WipePresence HydrationType = "wipe_presence"
)

// ConnectReply is the server->client reply to a successful connect.
type ConnectReply struct {
	Type             string                  `json:"type"`
	ConnectRequestID string                  `json:"connect_request_id"`
	HydrationType    HydrationType           `json:"hydration_type"`
	ProtocolVersion  int                     `json:"protocol_version"`
	Schema           schema.SerializedSchema `json:"schema"`
	ServerClock      uint64                  `json:"server_clock"`
	Diff             DiffMap                 `json:"diff"`
}

// PatchMessage is a server->client broadcast of a committed change.
type PatchMessage struct {
	Type        string  `json:"type"`
	Diff        DiffMap `json:"diff"`
	ServerClock uint64  `json:"server_clock"`
}

// PushResultKind discriminates the three shapes a push_result's action
// field can take.
type PushResultKind int

const (
	ActionCommit PushResultKind = iota
	ActionDiscard
	ActionRebase
)

// PushResultAction is the tagged "commit" | "discard" | {rebase_with_diff} value.
type PushResultAction struct {
	Kind        PushResultKind
	RebaseDiff  DiffMap
}

func (a PushResultAction) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActionCommit:
		return json.Marshal("commit")
	case ActionDiscard:
		return json.Marshal("discard")
	case ActionRebase:
		return json.Marshal(struct {
			RebaseWithDiff DiffMap `json:"rebase_with_diff"`
		}{a.RebaseDiff})
	default:
		return nil, fmt.Errorf("wire: marshal push result action: unknown kind %d", a.Kind)
	}
}

func (a *PushResultAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "commit":
			*a = PushResultAction{Kind: ActionCommit}
			return nil
		case "discard":
			*a = PushResultAction{Kind: ActionDiscard}
			return nil
		default:
			return fmt.Errorf("wire: unmarshal push result action: unknown string %q", s)
		}
	}

	var obj struct {
		RebaseWithDiff DiffMap `json:"rebase_with_diff"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("wire: unmarshal push result action: %w", err)
	}
	*a = PushResultAction{Kind: ActionRebase, RebaseDiff: obj.RebaseWithDiff}
	return nil
}

// PushResult is the server->client reply to a push.
type PushResult struct {
	Type        string           `json:"type"`
	ClientClock uint64           `json:"client_clock"`
	ServerClock uint64           `json:"server_clock"`
	Action      PushResultAction `json:"action"`
}

// PongReply answers a ping, sent outside the debounced stream.
type PongReply struct {
	Type string `json:"type"`
}

// IncompatibilityError is sent immediately before closing a rejected
// session's socket.
type IncompatibilityError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// DataEnvelope batches originally-separate debounced messages (patch
// and/or push_result) into a single outbound frame.
type DataEnvelope struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

// ErrorMessage is a fatal protocol error; the socket closes after it is sent.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// typeSniff peeks at a message's "type" field without fully decoding it.
type typeSniff struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one JSON message into the concrete client->server
// type its "type" field names. The returned value is one of *ConnectRequest,
// *PushRequest, or *PingRequest.
func DecodeClientMessage(data []byte) (any, error) {
	var t typeSniff
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("wire: sniff message type: %w", err)
	}

	switch t.Type {
	case TypeConnect:
		var m ConnectRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: unmarshal connect: %w", err)
		}
		return &m, nil
	case TypePush:
		var m PushRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: unmarshal push: %w", err)
		}
		return &m, nil
	case TypePing:
		var m PingRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: unmarshal ping: %w", err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("wire: unknown client message type %q", t.Type)
	}
}
