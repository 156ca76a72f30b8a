// Package protocol defines the tagged-union JSON frames exchanged over the
// gateway's WebSocket connection, and the close codes used to terminate
// them. Wire shape mirrors the client/server operation tables.
package protocol

import "encoding/json"

// ClientOp names an inbound client-to-server frame kind.
type ClientOp string

const (
	OpPing          ClientOp = "ping"
	OpSubscribe     ClientOp = "subscribe"
	OpUnsubscribe   ClientOp = "unsubscribe"
	OpMessage       ClientOp = "message"
	OpTyping        ClientOp = "typing"
	OpVouch         ClientOp = "vouch"
	OpVouchRevoke   ClientOp = "vouch_revoke"
	OpFlag          ClientOp = "flag"
)

// ServerOp names an outbound server-to-client frame kind.
type ServerOp string

const (
	OpSubscribed   ServerOp = "subscribed"
	OpUnsubscribed ServerOp = "unsubscribed"
	OpContext      ServerOp = "context"
	OpMessageFrame ServerOp = "message"
	OpMessageAck   ServerOp = "message_ack"
	OpPresence     ServerOp = "presence"
	OpTypingFrame  ServerOp = "typing"
	OpQuarantined  ServerOp = "quarantined"
	OpPong         ServerOp = "pong"
	OpError        ServerOp = "error"
)

// ClientFrame is the envelope every inbound frame is unmarshaled into
// first; Payload is re-decoded once Op is known.
type ClientFrame struct {
	Op      ClientOp        `json:"op"`
	ReqID   string          `json:"req_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the body of a subscribe/unsubscribe frame. Channels
// is plural: a single frame may (un)subscribe several channels at once.
type SubscribePayload struct {
	Channels []string `json:"channels"`
}

// MessagePayload is the body of a client message frame.
type MessagePayload struct {
	Channel     string `json:"channel"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// TypingPayload is the body of a client typing-indicator frame.
type TypingPayload struct {
	Channel string `json:"channel"`
}

// TrustMutationPayload is the body of a vouch/vouch_revoke/flag frame.
type TrustMutationPayload struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// ServerFrame is the envelope every outbound frame is marshaled from.
type ServerFrame struct {
	Op      ServerOp    `json:"op"`
	ReqID   string      `json:"req_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// SubscribedPayload acknowledges a subscribe frame.
type SubscribedPayload struct {
	Channel string `json:"channel"`
}

// UnsubscribedPayload acknowledges an unsubscribe frame.
type UnsubscribedPayload struct {
	Channel string `json:"channel"`
}

// ContextPayload carries a channel's behavioral instructions, sent once
// immediately after a successful subscribe.
type ContextPayload struct {
	Channel      string `json:"channel"`
	Instructions string `json:"instructions,omitempty"`
}

// MessagePayloadOut is the fanned-out body of a server message frame.
type MessagePayloadOut struct {
	MessageID   string `json:"message_id"`
	Channel     string `json:"channel"`
	AuthorID    string `json:"author_id"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	CreatedAt   int64  `json:"created_at"` // unix millis
}

// MessageAckPayload confirms receipt of a client message frame to its
// own author, independent of the fanned-out broadcast copy.
type MessageAckPayload struct {
	ReqID     string `json:"req_id"`
	MessageID string `json:"message_id"`
}

// PresencePayload announces a channel's full online set, per spec.md §4.5:
// broadcast on every transition and on a 30-second heartbeat. There is no
// per-agent delta frame -- subscribers always receive the whole set.
type PresencePayload struct {
	Channel string   `json:"channel"`
	Online  []string `json:"online"`
}

// TypingPayloadOut is the fanned-out body of a server typing frame.
type TypingPayloadOut struct {
	Channel string `json:"channel"`
	AgentID string `json:"agent_id"`
}

// QuarantinedPayload is the body of an OpQuarantined frame. The gateway
// never sends one: a quarantined agent is refused at admission with a
// QUARANTINED error frame and close code CloseQuarantined, and an already
// open connection is not closed when its agent becomes quarantined.
type QuarantinedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload reports an admission or protocol failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope field names for the sender instance, sender agent and presence
// marker. Neither the bus nor the fan-out router references them:
// bus.Envelope carries these values as its own instance_id, agent_id and
// presence fields outside Data, and only Data is written to a client.
const (
	EnvelopeSenderInstance = "_senderInstanceId"
	EnvelopeSenderAgent    = "_senderAgentId"
	EnvelopePresenceMarker = "_presenceBroadcast"
)

// Close codes returned to the client alongside a websocket close frame.
const (
	CloseAuthFailure    = 4001
	CloseIdleTimeout    = 4002
	CloseQuarantined    = 4003
)
