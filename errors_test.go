package phymuti

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeString(t *testing.T) {
	require.Equal(t, "device not found", ErrCodeDeviceNotFound.String())
	require.NotEmpty(t, ErrorCode(-999).String())
}

func TestNewErrorDefaultMessage(t *testing.T) {
	err := NewError("CreateInstance", ErrCodeDeviceCreateFailed)
	require.Equal(t, ErrCodeDeviceCreateFailed, err.Code)
	require.Equal(t, ErrCodeDeviceCreateFailed.String(), err.Msg)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := NewError("Op1", ErrCodeBusy)
	b := NewError("Op2", ErrCodeBusy)
	require.True(t, errors.Is(a, b), "expected errors.Is to match on code")

	c := NewError("Op3", ErrCodeNotFound)
	require.False(t, errors.Is(a, c), "expected errors.Is to not match different codes")
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("Lock", ErrCodeMutexLockFailed)
	wrapped := WrapError("DestroyInstance", inner)
	require.Equal(t, ErrCodeMutexLockFailed, wrapped.Code)
	require.True(t, errors.Is(wrapped, inner), "wrapped error should unwrap to inner via errors.Is")
}

func TestWrapErrorClassifiesPlainError(t *testing.T) {
	wrapped := WrapError("Op", errors.New("boom"))
	require.Equal(t, ErrCodeInternal, wrapped.Code)
}

func TestWrapErrorNil(t *testing.T) {
	require.Nil(t, WrapError("Op", nil))
}

func TestCodeOfAndIsCode(t *testing.T) {
	require.Equal(t, Success, CodeOf(nil))
	err := NewError("Op", ErrCodeWatchpointLimit)
	require.True(t, IsCode(err, ErrCodeWatchpointLimit))
	require.False(t, IsCode(errors.New("plain"), ErrCodeWatchpointLimit))
}
