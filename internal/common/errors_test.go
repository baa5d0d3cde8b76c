package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/runway/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatching(t *testing.T) {
	tests := []struct {
		err    error
		target error
		name   string
		msg    string
	}{
		{
			name:   "validation with field",
			err:    NewValidationError("effective_date", "bad date %q", "2025-02-31"),
			target: ErrValidation,
			msg:    `validation failed: effective_date: bad date "2025-02-31"`,
		},
		{
			name:   "validation without field",
			err:    &ValidationError{Message: "unknown type"},
			target: ErrValidation,
			msg:    "validation failed: unknown type",
		},
		{
			name:   "incomplete",
			err:    &IncompleteScenarioError{Missing: []string{"amount"}, PendingLinked: []string{"reduce_tools"}},
			target: ErrIncompleteScenario,
			msg:    "scenario incomplete: missing parameters: amount; unanswered linked prompts: reduce_tools",
		},
		{
			name:   "commit conflict",
			err:    &CommitConflictError{EventID: "acme-2", Err: ErrVersionConflict},
			target: ErrCommitConflict,
			msg:    "commit conflict on event acme-2: version conflict",
		},
		{
			name:   "user error",
			err:    NewUserError("Could not commit", ErrStorageBusy),
			target: ErrStorageBusy,
			msg:    "Could not commit: storage busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.target)
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}

	conflict := &CommitConflictError{Err: ErrVersionConflict}
	assert.ErrorIs(t, conflict, ErrVersionConflict)
	assert.Equal(t, "commit conflict: version conflict", conflict.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "busy", err: fmt.Errorf("save: %w", ErrStorageBusy), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "marked retryable", err: &RetryableError{Err: errors.New("flaky"), Retryable: true}, want: true},
		{name: "marked permanent", err: &RetryableError{Err: errors.New("flaky")}, want: false},
		{name: "conflict", err: &CommitConflictError{Err: ErrVersionConflict}, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	fast := service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("succeeds after busy", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return ErrStorageBusy
			}
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return ErrStorageBusy
		}, fast)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.ErrorIs(t, err, ErrStorageBusy)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return ErrCommitConflict
		}, fast)
		assert.ErrorIs(t, err, ErrCommitConflict)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := WithRetry(ctx, func() error {
			cancel()
			return ErrStorageBusy
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "debug", want: "DEBUG"},
		{in: "info", want: "INFO"},
		{in: "", want: "INFO"},
		{in: "warn", want: "WARN"},
		{in: "error", want: "ERROR"},
		{in: "loud", want: "INFO", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, level.String())
		})
	}

	assert.ErrorIs(t, SetupLogger(0, "xml"), ErrInvalidConfig)
}
