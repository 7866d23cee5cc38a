package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buy-log-backend/pkg/apperrors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestWriteSuccessResponseWritesRawPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessResponse(rec, map[string]string{"token": "abc"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"token":"abc"}`, rec.Body.String())
}

func TestWriteAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{apperrors.NotFound("user not found"), http.StatusNotFound, "NOT_FOUND", "user not found"},
		{fmt.Errorf("invite: %w", apperrors.InvalidState("cannot invite users who are in different groups")), http.StatusBadRequest, "INVALID_STATE", "cannot invite users who are in different groups"},
		{apperrors.New(apperrors.CodeCapacityExceeded, "full"), http.StatusBadRequest, "CAPACITY_EXCEEDED", "full"},
		{apperrors.Conflict("login already taken"), http.StatusConflict, "CONFLICT", "login already taken"},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteAppError(rec, tc.err)

		assert.Equal(t, tc.status, rec.Code)
		apiErr := decodeError(t, rec)
		assert.Equal(t, tc.code, apiErr.Code)
		assert.Equal(t, tc.msg, apiErr.Message)
	}
}

func TestWriteNoContentResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContentResponse(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWriteMethodNotAllowedResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteMethodNotAllowedResponse(rec, "method PATCH not allowed for /group")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Code)
	assert.Equal(t, "method PATCH not allowed for /group", body.Message)
}
