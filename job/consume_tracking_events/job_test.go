package consume_tracking_events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"outreach/config"
	"outreach/entity"
	"outreach/pkg/mq"
)

type recordingTracker struct {
	events []*entity.TrackingEvent
	err    error
}

func (t *recordingTracker) ApplyEvent(_ context.Context, event *entity.TrackingEvent) error {
	t.events = append(t.events, event)
	return t.err
}

func TestHandleTrackingEvent(t *testing.T) {
	tracker := new(recordingTracker)
	job := New(config.Tracking{}, tracker).(*ConsumeTrackingEvents)

	// bodies arrive as decoded JSON maps, not typed structs
	err := job.handleTrackingEvent(context.Background(), &mq.Message{
		Payload: mq.PayloadTrackingEvent,
		Key:     "12",
		Body: map[string]interface{}{
			"email_log_id": 12,
			"email":        "a@x.io",
			"event":        "opened",
			"timestamp":    1700000000,
		},
	})
	require.NoError(t, err)
	require.Len(t, tracker.events, 1)
	require.Equal(t, &entity.TrackingEvent{
		EmailLogID: 12,
		Email:      "a@x.io",
		Event:      entity.TrackingEventOpened,
		Timestamp:  1700000000,
	}, tracker.events[0])
}

func TestHandleTrackingEvent_Errors(t *testing.T) {
	errApply := errors.New("db down")
	tracker := &recordingTracker{err: errApply}
	job := New(config.Tracking{}, tracker).(*ConsumeTrackingEvents)

	err := job.handleTrackingEvent(context.Background(), &mq.Message{
		Payload: mq.PayloadTrackingEvent,
		Body:    map[string]interface{}{"email_log_id": 1, "email": "a@x.io", "event": "clicked"},
	})
	require.ErrorIs(t, err, errApply)

	err = job.handleTrackingEvent(context.Background(), &mq.Message{
		Payload: mq.PayloadTrackingEvent,
		Body:    map[string]interface{}{"email_log_id": "not-a-number"},
	})
	require.Error(t, err)
	require.Len(t, tracker.events, 1)
}

func TestRun_TrackingDisabled(t *testing.T) {
	job := New(config.Tracking{}, new(recordingTracker))

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.CleanUp(context.Background()))
}
