package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackingEvent_Apply(t *testing.T) {
	t.Parallel()

	r := &Recipient{Status: RecipientStatusSent, SentAt: u64(10)}

	require.NoError(t, (&TrackingEvent{Event: TrackingEventDelivered, Timestamp: 11}).Apply(r))
	require.Equal(t, RecipientStatusDelivered, r.Status)
	require.Equal(t, uint64(11), *r.DeliveredAt)

	require.NoError(t, (&TrackingEvent{Event: TrackingEventClicked, Timestamp: 13}).Apply(r))
	require.Equal(t, RecipientStatusClicked, r.Status)
	require.Equal(t, uint64(13), *r.ClickedAt)
	require.Equal(t, uint64(13), *r.OpenedAt)

	// late events never downgrade
	require.NoError(t, (&TrackingEvent{Event: TrackingEventOpened, Timestamp: 14}).Apply(r))
	require.Equal(t, RecipientStatusClicked, r.Status)
	require.Equal(t, uint64(13), *r.OpenedAt)

	require.NoError(t, (&TrackingEvent{Event: TrackingEventBounced, Timestamp: 15}).Apply(r))
	require.Equal(t, RecipientStatusBounced, r.Status)

	require.Error(t, (&TrackingEvent{Event: "spam"}).Apply(r))
}

func TestTrackingEvent_FailedStaysFailed(t *testing.T) {
	t.Parallel()

	r := &Recipient{Status: RecipientStatusFailed}
	require.NoError(t, (&TrackingEvent{Event: TrackingEventDelivered, Timestamp: 1}).Apply(r))
	require.Equal(t, RecipientStatusFailed, r.Status)

	require.NoError(t, (&TrackingEvent{Event: TrackingEventBounced, Timestamp: 2}).Apply(r))
	require.Equal(t, RecipientStatusFailed, r.Status)
}
