package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"outreach/dep"
	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/placeholder"
	"outreach/repo"
)

const resendCampaignSuffix = "_resend"

var (
	ErrNoFailuresToResend = errutil.ValidationError(errors.New("no failed recipients to resend"))
	ErrResendInProgress   = errutil.ConflictError(errors.New("resend already in progress for this email log"))
	ErrOutcomeMismatch    = errors.New("number of outcomes does not match number of emails")
)

// CampaignMeta is the part of an email log that is not derived from outcomes.
type CampaignMeta struct {
	Subject      string
	HtmlContent  string
	TextContent  string
	TemplateID   uint64
	TemplateData map[string]string
	SenderID     uint64
	Campaign     string
	Tags         []string
}

type ResendResult struct {
	TotalResent       uint64 `json:"total_resent"`
	NewSuccessCount   uint64 `json:"new_success_count"`
	RemainingFailures uint64 `json:"remaining_failures"`
}

type Reconciler interface {
	// RecordCampaign persists one log for a completed send; outcomes[i] belongs to emails[i].
	RecordCampaign(ctx context.Context, emails []*dep.Email, outcomes []*dep.Outcome, meta *CampaignMeta) (*entity.EmailLog, error)
	ResendFailed(ctx context.Context, emailLogID uint64) (*ResendResult, error)
}

type reconciler struct {
	emailLogRepo   repo.EmailLogRepo
	contactRepo    repo.ContactRepo
	lockRepo       repo.LockRepo
	dispatcher     Dispatcher
	footerInjector *FooterInjector
	lockTTL        time.Duration
	now            func() time.Time
}

func NewReconciler(emailLogRepo repo.EmailLogRepo, contactRepo repo.ContactRepo, lockRepo repo.LockRepo,
	dispatcher Dispatcher, footerInjector *FooterInjector, lockTTL time.Duration) Reconciler {
	return &reconciler{
		emailLogRepo:   emailLogRepo,
		contactRepo:    contactRepo,
		lockRepo:       lockRepo,
		dispatcher:     dispatcher,
		footerInjector: footerInjector,
		lockTTL:        lockTTL,
		now:            time.Now,
	}
}

func (r *reconciler) RecordCampaign(ctx context.Context, emails []*dep.Email, outcomes []*dep.Outcome, meta *CampaignMeta) (*entity.EmailLog, error) {
	if len(emails) != len(outcomes) {
		return nil, fmt.Errorf("%w: %d emails, %d outcomes", ErrOutcomeMismatch, len(emails), len(outcomes))
	}

	recipients := make([]*entity.Recipient, len(emails))
	for i, email := range emails {
		recipient := &entity.Recipient{
			Email: goutil.String(email.To),
		}
		if email.ContactID != 0 {
			recipient.ContactID = goutil.Uint64(email.ContactID)
		}
		applyOutcome(recipient, outcomes[i])
		recipients[i] = recipient
	}

	now := uint64(r.now().Unix())
	emailLog := &entity.EmailLog{
		Recipients:   recipients,
		Subject:      goutil.String(meta.Subject),
		HtmlContent:  goutil.String(meta.HtmlContent),
		TextContent:  goutil.String(meta.TextContent),
		TemplateData: meta.TemplateData,
		SenderID:     goutil.Uint64(meta.SenderID),
		Campaign:     goutil.String(meta.Campaign),
		Tags:         meta.Tags,
		CreateTime:   goutil.Uint64(now),
		UpdateTime:   goutil.Uint64(now),
	}
	if meta.TemplateID != 0 {
		emailLog.TemplateID = goutil.Uint64(meta.TemplateID)
	}
	emailLog.RecomputeStats()

	if _, err := r.emailLogRepo.Create(ctx, emailLog); err != nil {
		log.Ctx(ctx).Error().Msgf("create email log failed after dispatch, campaign: %s, recipients: %d, err: %v",
			meta.Campaign, len(emails), err)
		return nil, err
	}

	return emailLog, nil
}

func (r *reconciler) ResendFailed(ctx context.Context, emailLogID uint64) (*ResendResult, error) {
	release, err := r.lockRepo.Acquire(ctx, fmt.Sprintf("email_log:%d", emailLogID), r.lockTTL)
	if err != nil {
		if errors.Is(err, repo.ErrLockHeld) {
			return nil, ErrResendInProgress
		}
		return nil, err
	}
	defer release()

	emailLog, err := r.emailLogRepo.GetByID(ctx, emailLogID)
	if err != nil {
		return nil, err
	}

	failed := emailLog.FailedRecipients()
	if len(failed) == 0 {
		return nil, ErrNoFailuresToResend
	}

	emails := make([]*dep.Email, len(failed))
	for i, recipient := range failed {
		emails[i] = r.rebuildEmail(ctx, emailLog, recipient)
	}

	outcomes := r.dispatcher.SendAll(ctx, emails)

	// the dispatcher preserves order, so outcomes line up with the failed subset
	var newSuccess uint64
	for i, recipient := range failed {
		applyOutcome(recipient, outcomes[i])
		if recipient.GetStatus() == entity.RecipientStatusSent {
			newSuccess++
		}
	}
	emailLog.RecomputeStats()

	if err := r.emailLogRepo.SaveRecipients(ctx, emailLog, failed); err != nil {
		log.Ctx(ctx).Error().Msgf("save resend outcomes failed, email_log_id: %d, resent: %d, succeeded: %d, err: %v",
			emailLogID, len(failed), newSuccess, err)
		return nil, err
	}

	return &ResendResult{
		TotalResent:       uint64(len(failed)),
		NewSuccessCount:   newSuccess,
		RemainingFailures: uint64(len(failed)) - newSuccess,
	}, nil
}

// rebuildEmail reconstructs the message for one failed recipient from the log snapshot.
// Contact fields are filled back in for tokens the snapshot left unresolved.
func (r *reconciler) rebuildEmail(ctx context.Context, emailLog *entity.EmailLog, recipient *entity.Recipient) *dep.Email {
	data := emailLog.GetTemplateData()

	if contactID := recipient.GetContactID(); contactID != 0 {
		contact, err := r.contactRepo.GetByID(ctx, contactID)
		if err != nil {
			log.Ctx(ctx).Warn().Msgf("get contact for resend failed, contact_id: %d, err: %v", contactID, err)
		} else {
			data = placeholder.Merge(contact.TemplateData(), data)
		}
	}

	email := &dep.Email{
		To:          recipient.GetEmail(),
		Subject:     placeholder.Render(emailLog.GetSubject(), data),
		HtmlContent: placeholder.Render(emailLog.GetHtmlContent(), data),
		TextContent: placeholder.Render(emailLog.GetTextContent(), data),
		Campaign:    emailLog.GetCampaign() + resendCampaignSuffix,
		ContactID:   recipient.GetContactID(),
	}
	if templateID := emailLog.GetTemplateID(); templateID != 0 {
		email.Template = strconv.FormatUint(templateID, 10)
	}
	if email.ContactID != 0 && email.HtmlContent != "" {
		email.HtmlContent = r.footerInjector.AddComplianceFooter(email.HtmlContent, email.ContactID)
	}

	return email
}

func applyOutcome(recipient *entity.Recipient, outcome *dep.Outcome) {
	if outcome.Success {
		recipient.Status = entity.RecipientStatusSent
		recipient.SentAt = goutil.Uint64(outcome.Timestamp)
		recipient.ErrorMessage = nil
		return
	}
	recipient.Status = entity.RecipientStatusFailed
	recipient.ErrorMessage = goutil.String(outcome.Error)
}
