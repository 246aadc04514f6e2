package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"extract code", ErrCodeUnsupportedFormat, CategoryExtract},
		{"provider code", ErrCodeProviderUnavailable, CategoryProvider},
		{"validation code", ErrCodeDimensionMismatch, CategoryValidation},
		{"store code", ErrCodeWriteConflict, CategoryStore},
		{"internal code", ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_RetryableFlag(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeProviderUnavailable, "down", nil)))
	assert.True(t, IsRetryable(New(ErrCodeWriteConflict, "conflict", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInputTooLong, "too long", nil)))
	assert.False(t, IsRetryable(New(ErrCodeCorruptFile, "corrupt", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestNew_DimensionMismatchIsFatal(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "expected 256, got 768", nil)
	assert.True(t, IsFatal(err))
	assert.False(t, IsFatal(New(ErrCodeProviderUnavailable, "down", nil)))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(ErrCodeCorruptFile, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeCorruptFile, GetCode(err))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeNotFound, "highlight abc missing", nil)
	b := New(ErrCodeNotFound, "different message", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, New(ErrCodeInternal, "x", nil)))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeCorruptFile, "bad pdf", nil).
		WithDetail("path", "docs/report.pdf").
		WithDetail("size", "120033")

	assert.Equal(t, "docs/report.pdf", err.Details["path"])
	assert.Equal(t, "120033", err.Details["size"])
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, func() error {
		calls++
		return New(ErrCodeInputTooLong, "too long", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_TransientErrorRetriedUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeProviderUnavailable, "down", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, func() error {
		return New(ErrCodeProviderUnavailable, "still down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeProviderUnavailable, GetCode(err))
}
