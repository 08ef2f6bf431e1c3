package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("not a chat participant"))

	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, "not a chat participant", Message(err))
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	err := fmt.Errorf("pq: connection refused")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
}

func TestInternalHidesCauseFromClients(t *testing.T) {
	cause := fmt.Errorf("pq: deadlock detected")
	err := Internal("failed to store message", cause)

	assert.Equal(t, "failed to store message", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "deadlock")
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Unauthorized("invalid session"), http.StatusUnauthorized},
		{Forbidden("not a chat participant"), http.StatusForbidden},
		{NotFound("chat not found"), http.StatusNotFound},
		{BadRequest("content must not be empty"), http.StatusBadRequest},
		{Internal("boom", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}
