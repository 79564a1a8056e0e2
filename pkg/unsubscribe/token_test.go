package unsubscribe

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSigner("s3cret", 24*time.Hour)
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0)
	token := s.Issue(42, issued)

	id, err := s.Verify(token, issued.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
}

func TestSigner_Deterministic(t *testing.T) {
	t.Parallel()

	s, err := NewSigner("s3cret", 0)
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0)
	require.Equal(t, s.Issue(7, issued), s.Issue(7, issued))
	require.NotEqual(t, s.Issue(7, issued), s.Issue(8, issued))
}

func TestSigner_Expired(t *testing.T) {
	t.Parallel()

	s, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0)
	_, err = s.Verify(s.Issue(1, issued), issued.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSigner_Tampered(t *testing.T) {
	t.Parallel()

	s, err := NewSigner("s3cret", 0)
	require.NoError(t, err)

	other, err := NewSigner("another", 0)
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0)
	token := s.Issue(1, issued)

	// payload of contact 2 with the signature of contact 1
	forgedPayload, _, _ := strings.Cut(s.Issue(2, issued), ".")
	_, sig, _ := strings.Cut(token, ".")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "swapped payload", token: forgedPayload + "." + sig, want: ErrInvalidSignature},
		{name: "other key", token: other.Issue(1, issued), want: ErrInvalidSignature},
		{name: "no separator", token: "abc", want: ErrMalformedToken},
		{name: "empty", token: "", want: ErrMalformedToken},
		{name: "bad signature encoding", token: forgedPayload + ".***", want: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Verify(tt.token, issued)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewSigner_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewSigner("", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
}
