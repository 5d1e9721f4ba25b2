package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidInput          = errors.New("invalid input")
	ErrMediaUnavailable      = errors.New("camera or microphone unavailable")
	ErrNegotiationTimeout    = errors.New("connection failed: negotiation timed out")
	ErrTransportDisconnected = errors.New("signaling transport disconnected")
	ErrLedgerFailure         = errors.New("time credit settlement failed")
	ErrInvalidSignal         = errors.New("invalid signaling payload")
	ErrRoomFull              = errors.New("room is full")
)

// HTTPStatus maps an error from the service layer to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidSignal):
		return http.StatusBadRequest
	case errors.Is(err, ErrLedgerFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may repeat the operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrLedgerFailure) || errors.Is(err, ErrTransportDisconnected)
}
