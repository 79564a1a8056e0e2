package dispatch

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outreach/config"
	"outreach/pkg/unsubscribe"
)

func newTestFooterInjector(t *testing.T) (*FooterInjector, *unsubscribe.Signer) {
	t.Helper()

	signer, err := unsubscribe.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)

	f := NewFooterInjector(signer, config.WebPages{FrontendURL: "https://ecell.example.com/"}, config.Footer{
		OrgName:    "E-Cell & Co",
		OrgAddress: "Thane",
	})
	f.now = func() time.Time {
		return time.Unix(1700000000, 0)
	}

	return f, signer
}

func TestFooterInjector_AddComplianceFooter(t *testing.T) {
	t.Parallel()

	f, signer := newTestFooterInjector(t)

	out := f.AddComplianceFooter("<p>Hello</p>", 42)

	require.True(t, strings.HasPrefix(out, "<p>Hello</p><div"))
	require.Contains(t, out, "E-Cell &amp; Co")
	require.Contains(t, out, "Thane")

	// deterministic for a fixed clock
	require.Equal(t, out, f.AddComplianceFooter("<p>Hello</p>", 42))

	u, err := url.Parse(f.UnsubscribeURL(42))
	require.NoError(t, err)
	require.Equal(t, "ecell.example.com", u.Host)
	require.Equal(t, config.PathUnsubscribe, u.Path)

	contactID, err := signer.Verify(u.Query().Get("token"), time.Unix(1700000100, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(42), contactID)
}
