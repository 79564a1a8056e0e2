package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHttpError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{name: "nil", err: nil, wantCode: http.StatusOK, wantMsg: ""},
		{name: "validation", err: ValidationError(errors.New("subject is required")), wantCode: http.StatusBadRequest, wantMsg: "subject is required"},
		{name: "not found", err: NotFoundError(errors.New("email log not found")), wantCode: http.StatusNotFound, wantMsg: "email log not found"},
		{name: "conflict", err: ConflictError(errors.New("version changed")), wantCode: http.StatusConflict, wantMsg: "version changed"},
		{name: "wrapped", err: fmt.Errorf("resend: %w", NotFoundError(errors.New("gone"))), wantCode: http.StatusNotFound, wantMsg: "gone"},
		{name: "plain", err: errors.New("db is down"), wantCode: http.StatusInternalServerError, wantMsg: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, msg := ParseHttpError(tt.err)
			require.Equal(t, tt.wantCode, code)
			require.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", ConflictError(errors.New("busy")))
	require.True(t, Is(err, http.StatusConflict))
	require.False(t, Is(err, http.StatusNotFound))
	require.False(t, Is(errors.New("plain"), http.StatusConflict))
}
