package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("session abc: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("user x: %w", ErrForbidden), http.StatusForbidden},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("settle: %w", ErrLedgerFailure), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestMediaAndNegotiationErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrMediaUnavailable, ErrNegotiationTimeout))
	assert.NotEqual(t, ErrMediaUnavailable.Error(), ErrNegotiationTimeout.Error())
	assert.True(t, Retryable(fmt.Errorf("end: %w", ErrLedgerFailure)))
	assert.False(t, Retryable(ErrForbidden))
}
