package consume_tracking_events

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"outreach/config"
	"outreach/dispatch"
	"outreach/entity"
	"outreach/pkg/mq"
	"outreach/pkg/service"
)

// ConsumeTrackingEvents applies provider delivery events queued by the
// on_email_event endpoint until the process is signalled to stop.
type ConsumeTrackingEvents struct {
	cfg      config.Tracking
	tracker  dispatch.Tracker
	consumer *mq.Consumer
}

func New(cfg config.Tracking, tracker dispatch.Tracker) service.Job {
	return &ConsumeTrackingEvents{
		cfg:     cfg,
		tracker: tracker,
	}
}

func (h *ConsumeTrackingEvents) Init(_ context.Context) error {
	mq.RegisterHandler(mq.PayloadTrackingEvent, h.handleTrackingEvent)
	return nil
}

func (h *ConsumeTrackingEvents) handleTrackingEvent(ctx context.Context, msg *mq.Message) error {
	event := new(entity.TrackingEvent)
	if err := msg.ParseBody(event); err != nil {
		log.Ctx(ctx).Error().Msgf("parse tracking event failed: %v, key: %s", err, msg.Key)
		return err
	}

	if err := h.tracker.ApplyEvent(ctx, event); err != nil {
		log.Ctx(ctx).Error().Msgf("apply tracking event failed: %v, email_log_id: %d, event: %s",
			err, event.EmailLogID, event.Event)
		return err
	}

	return nil
}

func (h *ConsumeTrackingEvents) Run(ctx context.Context) error {
	if !h.cfg.Enabled() {
		log.Ctx(ctx).Warn().Msg("tracking queue not configured, nothing to consume")
		return nil
	}

	var err error
	h.consumer, err = mq.NewConsumer(ctx, mq.ConsumerConfig{
		Brokers:       h.cfg.Brokers,
		Topic:         h.cfg.Topic,
		ConsumerGroup: h.cfg.ConsumerGroup,
		InitialOffset: "oldest",
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init tracking consumer failed: %v", err)
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case received := <-sig:
		log.Ctx(ctx).Info().Msgf("received signal %v, stopping consumer", received)
	case <-ctx.Done():
	}

	return nil
}

func (h *ConsumeTrackingEvents) CleanUp(ctx context.Context) error {
	if h.consumer == nil {
		return nil
	}

	if err := h.consumer.Close(); err != nil {
		log.Ctx(ctx).Error().Msgf("close tracking consumer failed: %v", err)
		return err
	}

	return nil
}
