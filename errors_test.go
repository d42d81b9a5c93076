package nanofetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchError(t *testing.T) {
	t.Parallel()

	t.Run("status error message", func(t *testing.T) {
		err := newStatusError(KindServerError, 502, "", true)
		require.Equal(t, "502 No message", err.Detail)
		require.Equal(t, "server error: 502 No message", err.Error())
		require.True(t, err.Transient())
	})

	t.Run("is matches only its own sentinel", func(t *testing.T) {
		err := newStatusError(KindClientError, 401, "Invalid API key", false)
		require.ErrorIs(t, err, ErrClientError)
		require.NotErrorIs(t, err, ErrServerError)
		require.False(t, err.Transient())
	})

	t.Run("wrapped error keeps kind", func(t *testing.T) {
		err := fmt.Errorf("fetch weather: %w", &FetchError{Kind: KindTimeoutExhausted, Detail: detailTimedOut})
		require.ErrorIs(t, err, ErrTimeoutExhausted)
		require.Equal(t, KindTimeoutExhausted, KindOf(err))

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, detailTimedOut, fetchErr.Detail)
	})

	t.Run("unwrap exposes transport error", func(t *testing.T) {
		err := &FetchError{Kind: KindTimeoutExhausted, Underlying: context.DeadlineExceeded}
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, "request timed out", err.Error())
	})

	t.Run("equal ignores underlying error", func(t *testing.T) {
		a := &FetchError{Kind: KindNetworkExhausted, Detail: "after maximum retries: 3", Underlying: errors.New("a")}
		b := &FetchError{Kind: KindNetworkExhausted, Detail: "after maximum retries: 3", Underlying: errors.New("b")}
		require.True(t, a.Equal(b))
		require.False(t, a.Equal(nil))
		require.True(t, (*FetchError)(nil).Equal(nil))
	})
}

func TestKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Redirection", KindRedirection.String())
	require.Equal(t, "MalformedResponse", KindMalformedResponse.String())
	require.Equal(t, "Kind(42)", Kind(42).String())
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: &FetchError{Kind: KindTimeoutExhausted}, want: http.StatusGatewayTimeout},
		{err: &FetchError{Kind: KindClientError}, want: http.StatusBadRequest},
		{err: &FetchError{Kind: KindCanceled}, want: http.StatusServiceUnavailable},
		{err: &FetchError{Kind: KindServerError}, want: http.StatusInternalServerError},
		{err: &FetchError{Kind: KindMalformedResponse}, want: http.StatusInternalServerError},
		{err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, StatusForError(tt.err), "%v", tt.err)
	}
}
