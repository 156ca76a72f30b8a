// Package admission is the request-scoped pipeline that resolves a
// presented token to an agent identity, resolves trust tier, enforces
// tier-adjusted rate limits, and checks channel membership before any
// connect or produce operation is allowed through.
package admission

// Code is one of the external protocol's named error codes, sent back to
// the client in an error frame's payload.
type Code string

const (
	// Authentication
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenRevoked       Code = "TOKEN_REVOKED"
	CodeAuthFailed         Code = "AUTH_FAILED"

	// Authorization
	CodeForbidden          Code = "FORBIDDEN"
	CodeReadOnly           Code = "READ_ONLY"
	CodeNotServerMember    Code = "NOT_SERVER_MEMBER"
	CodeNotDMParticipant   Code = "NOT_DM_PARTICIPANT"
	CodeNotServerAdmin     Code = "NOT_SERVER_ADMIN"
	CodeNotServerOwner     Code = "NOT_SERVER_OWNER"
	CodeQuarantined        Code = "QUARANTINED"
	CodeBannedFromServer   Code = "BANNED_FROM_SERVER"

	// Resource
	CodeAgentNotFound   Code = "AGENT_NOT_FOUND"
	CodeChannelNotFound Code = "CHANNEL_NOT_FOUND"
	CodeMessageNotFound Code = "MESSAGE_NOT_FOUND"
	CodeServerNotFound  Code = "SERVER_NOT_FOUND"

	// Validation
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeUsernameTaken       Code = "USERNAME_TAKEN"
	CodeMaxChannelsReached  Code = "MAX_CHANNELS_REACHED"
	CodeAlreadyFriends      Code = "ALREADY_FRIENDS"
	CodeFriendRequestExists Code = "FRIEND_REQUEST_EXISTS"
	CodeCannotFriendSelf    Code = "CANNOT_FRIEND_SELF"
	CodeCannotVouchSelf     Code = "CANNOT_VOUCH_SELF"
	CodeVouchExists         Code = "VOUCH_EXISTS"
	CodeAlreadyFlagged      Code = "ALREADY_FLAGGED"
	CodeInsufficientTrust   Code = "INSUFFICIENT_TRUST"
	CodeBlocked             Code = "BLOCKED"

	// Throughput
	CodeRateLimited Code = "RATE_LIMITED"

	// Protocol
	CodeInvalidJSON     Code = "INVALID_JSON"
	CodeUnknownOp       Code = "UNKNOWN_OP"
	CodeNotSubscribed   Code = "NOT_SUBSCRIBED"
	CodeSubscribeFailed Code = "SUBSCRIBE_FAILED"
	CodeIdleTimeout     Code = "IDLE_TIMEOUT"

	// Internal
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeHandlerError  Code = "HANDLER_ERROR"
)

// Error pairs a Code with a human-readable message, and reports whether
// the connection must be closed rather than answered with an error frame.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// New builds an Error with message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ClosesConnection reports whether this code terminates the socket rather
// than just emitting an error frame (spec.md §7 propagation policy).
func (e *Error) ClosesConnection() bool {
	switch e.Code {
	case CodeIdleTimeout, CodeQuarantined,
		CodeInvalidCredentials, CodeTokenExpired, CodeTokenRevoked, CodeAuthFailed:
		return true
	default:
		return false
	}
}
