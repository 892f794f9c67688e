package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeErrorMatching(t *testing.T) {
	wrapped := ErrTransientStore.WrapMsg("registry add", "user", "alice")
	require.True(t, errors.Is(wrapped, ErrTransientStore))
	require.False(t, errors.Is(wrapped, ErrUnknownUser))

	// 再包一层标准库 wrap 也要能认出来
	deep := fmt.Errorf("outer: %w", wrapped)
	require.True(t, IsTransient(deep))
}

func TestIsTransientOnlyForStoreErrors(t *testing.T) {
	require.True(t, IsTransient(ErrTransientStore))
	require.False(t, IsTransient(ErrUnknownUser))
	require.False(t, IsTransient(ErrBroadcastDelivery))
	require.False(t, IsTransient(errors.New("plain")))
	require.False(t, IsTransient(nil))
}

func TestWrapMsgKeepsCodeAndDetail(t *testing.T) {
	err := ErrUnknownUser.WrapMsg("connect dropped", "session", "s1")

	var codeErr *CodeError
	require.True(t, errors.As(err, &codeErr))
	require.Equal(t, CodeUnknownUser, codeErr.Code)
	require.Contains(t, codeErr.Detail, "connect dropped")
	require.Contains(t, codeErr.Detail, "session=s1")

	// 原始哨兵不能被改到
	require.Empty(t, ErrUnknownUser.Detail)
}
