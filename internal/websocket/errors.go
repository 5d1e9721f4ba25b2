package websocket

import (
	"errors"

	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrJoinFailed         = errors.New("join failed")
)

// Error codes sent to clients in error messages.
const (
	CodeMalformed     = "malformed_message"
	CodeUnknownType   = "unknown_type"
	CodeInvalidSignal = "invalid_signal"
	CodeRoomFull      = "room_full"
	CodeJoinFailed    = "join_failed"
	CodeInternal      = "internal"
)

// ErrorCode maps err to the code reported to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrJoinFailed):
		return CodeJoinFailed
	case errors.Is(err, ErrMalformedMessage):
		return CodeMalformed
	case errors.Is(err, ErrUnknownMessageType):
		return CodeUnknownType
	case errors.Is(err, apperrors.ErrInvalidSignal):
		return CodeInvalidSignal
	default:
		return CodeInternal
	}
}

// JoinReply reports whether code answers a join-room request.
func JoinReply(code string) bool {
	return code == CodeRoomFull || code == CodeJoinFailed
}

// ErrorMessage builds the error envelope for err.
func ErrorMessage(err error) Message {
	msg, _ := NewMessage(TypeError, ErrorPayload{Code: ErrorCode(err), Message: err.Error()})
	return msg
}
