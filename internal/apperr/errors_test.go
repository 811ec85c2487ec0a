package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
		public string
	}{
		{"unauthenticated", Unauthenticated("invalid token"), KindUnauthenticated, http.StatusUnauthorized, "invalid token"},
		{"forbidden", Forbidden("not a room participant"), KindForbidden, http.StatusForbidden, "not a room participant"},
		{"not found", NotFound("message not found"), KindNotFound, http.StatusNotFound, "message not found"},
		{"validation", Validation("content is required"), KindValidation, http.StatusBadRequest, "content is required"},
		{"internal", Internal("could not store message", errors.New("conn reset")), KindInternal, http.StatusInternalServerError, "could not store message"},
		{"wrapped", fmt.Errorf("send: %w", Forbidden("nope")), KindForbidden, http.StatusForbidden, "nope"},
		{"plain error", errors.New("boom"), KindInternal, http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.public, PublicMessage(tt.err))
		})
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("conn reset")
	err := Internal("could not store message", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "could not store message: conn reset", err.Error())
}
