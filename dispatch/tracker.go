package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/repo"
)

const maxTrackingRetries = 3

var ErrRecipientNotFound = errutil.NotFoundError(errors.New("recipient not found in email log"))

type Tracker interface {
	// ApplyEvent records a delivery or engagement event on the matching recipient of an email log.
	ApplyEvent(ctx context.Context, event *entity.TrackingEvent) error
}

type tracker struct {
	emailLogRepo repo.EmailLogRepo
	newBackOff   func() backoff.BackOff
}

func NewTracker(emailLogRepo repo.EmailLogRepo) Tracker {
	return &tracker{
		emailLogRepo: emailLogRepo,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

func (t *tracker) ApplyEvent(ctx context.Context, event *entity.TrackingEvent) error {
	op := func() error {
		err := t.applyOnce(ctx, event)
		if errors.Is(err, repo.ErrEmailLogVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), maxTrackingRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		log.Ctx(ctx).Error().Msgf("apply tracking event failed: %v, email_log_id: %d, event: %s",
			err, event.EmailLogID, event.Event)
		return err
	}

	return nil
}

func (t *tracker) applyOnce(ctx context.Context, event *entity.TrackingEvent) error {
	emailLog, err := t.emailLogRepo.GetByID(ctx, event.EmailLogID)
	if err != nil {
		return err
	}

	var recipient *entity.Recipient
	for _, r := range emailLog.Recipients {
		if strings.EqualFold(r.GetEmail(), event.Email) {
			recipient = r
			break
		}
	}
	if recipient == nil {
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, event.Email)
	}

	if err := event.Apply(recipient); err != nil {
		return errutil.ValidationError(err)
	}
	emailLog.RecomputeStats()

	return t.emailLogRepo.SaveRecipients(ctx, emailLog, []*entity.Recipient{recipient})
}
