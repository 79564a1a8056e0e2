// Package dispatch sends rendered messages in paced batches and reconciles
// their outcomes into email logs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"outreach/config"
	"outreach/dep"
)

var (
	errNoOutcome = errors.New("transport returned no outcome")
)

// Dispatcher returns exactly one outcome per input email, in input order.
type Dispatcher interface {
	SendAll(ctx context.Context, emails []*dep.Email) []*dep.Outcome
}

type dispatcher struct {
	emailService dep.EmailService
	batchSize    int
	batchDelay   time.Duration

	sleep func(d time.Duration)
	now   func() time.Time
}

func NewDispatcher(emailService dep.EmailService, cfg config.Dispatch) Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	return &dispatcher{
		emailService: emailService,
		batchSize:    batchSize,
		batchDelay:   cfg.BatchDelay(),
		sleep:        time.Sleep,
		now:          time.Now,
	}
}

func (d *dispatcher) SendAll(ctx context.Context, emails []*dep.Email) []*dep.Outcome {
	outcomes := make([]*dep.Outcome, len(emails))

	for start := 0; start < len(emails); start += d.batchSize {
		end := start + d.batchSize
		if end > len(emails) {
			end = len(emails)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = d.sendOne(ctx, emails[i])
				return nil
			})
		}
		_ = g.Wait()

		log.Ctx(ctx).Debug().Msgf("dispatched batch, range: [%d, %d), total: %d", start, end, len(emails))

		if end < len(emails) && d.batchDelay > 0 {
			d.sleep(d.batchDelay)
		}
	}

	return outcomes
}

// sendOne settles a single send: panics and missing outcomes become failures.
func (d *dispatcher) sendOne(ctx context.Context, email *dep.Email) (outcome *dep.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().Msgf("send email panicked, to: %s, panic: %v", email.To, r)
			outcome = d.failure(email, fmt.Errorf("panic: %v", r))
		}
	}()

	outcome = d.emailService.SendEmail(ctx, email)
	if outcome == nil {
		outcome = d.failure(email, errNoOutcome)
	}

	return outcome
}

func (d *dispatcher) failure(email *dep.Email, err error) *dep.Outcome {
	return &dep.Outcome{
		Email:     email.To,
		Success:   false,
		Error:     err.Error(),
		Timestamp: uint64(d.now().Unix()),
	}
}
