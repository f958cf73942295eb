package util

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestIsRetryableError(t *testing.T) {
	jsonErr := json.Unmarshal([]byte(`{bad`), &struct{}{})

	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json syntax", jsonErr, false, "json_decode_error"},
		{"row not found", pgx.ErrNoRows, false, "row_not_found"},
		{"duplicate key", errors.New(`duplicate key value violates unique constraint "reminder_log_key"`), false, "duplicate_key"},
		{"connection refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"statement timeout", errors.New("ERROR: canceling statement due to statement timeout"), true, "db_connection_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tc.err)
			if retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", retryable, tc.retryable)
			}
			if errType != tc.errType {
				t.Errorf("type = %q, want %q", errType, tc.errType)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(1, 5, false) {
		t.Error("non-retryable error must never retry")
	}
	if !ShouldRetry(5, 5, true) {
		t.Error("count at the limit should still retry")
	}
	if ShouldRetry(6, 5, true) {
		t.Error("count past the limit must stop")
	}
}
