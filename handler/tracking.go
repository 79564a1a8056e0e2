package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"outreach/dispatch"
	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/mq"
	"outreach/pkg/validator"
)

// EventPublisher queues messages for asynchronous processing.
type EventPublisher interface {
	SendMessage(msg *mq.Message) error
}

type TrackingHandler interface {
	OnEmailEvent(ctx context.Context, req *OnEmailEventRequest, res *OnEmailEventResponse) error
}

type trackingHandler struct {
	tracker   dispatch.Tracker
	publisher EventPublisher
	now       func() time.Time
}

// NewTrackingHandler applies events inline when publisher is nil.
func NewTrackingHandler(tracker dispatch.Tracker, publisher EventPublisher) TrackingHandler {
	return &trackingHandler{
		tracker:   tracker,
		publisher: publisher,
		now:       time.Now,
	}
}

type OnEmailEventRequest struct {
	EmailLogID *uint64 `json:"email_log_id,omitempty"`
	Email      *string `json:"email,omitempty"`
	Event      *string `json:"event,omitempty"`
	Timestamp  *uint64 `json:"timestamp,omitempty"`
}

func (req *OnEmailEventRequest) ToTrackingEvent(now time.Time) *entity.TrackingEvent {
	ts := uint64(now.Unix())
	if req.Timestamp != nil && *req.Timestamp != 0 {
		ts = *req.Timestamp
	}
	return &entity.TrackingEvent{
		EmailLogID: *req.EmailLogID,
		Email:      *req.Email,
		Event:      entity.TrackingEventType(*req.Event),
		Timestamp:  ts,
	}
}

type OnEmailEventResponse struct {
	Queued *bool `json:"queued,omitempty"`
}

var OnEmailEventValidator = validator.MustForm(map[string]validator.Validator{
	"email_log_id": &validator.UInt64{Min: 1},
	"email":        EmailValidator(false),
	"event": &validator.String{
		Validators: []validator.StringFunc{oneOf(entity.TrackingEventTypes)},
	},
	"timestamp": &validator.UInt64{Optional: true},
})

func (h *trackingHandler) OnEmailEvent(ctx context.Context, req *OnEmailEventRequest, res *OnEmailEventResponse) error {
	if err := OnEmailEventValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	event := req.ToTrackingEvent(h.now())

	if h.publisher != nil {
		if err := h.publisher.SendMessage(&mq.Message{
			Payload: mq.PayloadTrackingEvent,
			Key:     strconv.FormatUint(event.EmailLogID, 10),
			Body:    event,
		}); err != nil {
			log.Ctx(ctx).Error().Msgf("publish tracking event failed: %v", err)
			return err
		}
		res.Queued = goutil.Bool(true)
		return nil
	}

	if err := h.tracker.ApplyEvent(ctx, event); err != nil {
		return err
	}
	res.Queued = goutil.Bool(false)

	return nil
}
