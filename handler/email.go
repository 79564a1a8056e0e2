package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"outreach/dep"
	"outreach/dispatch"
	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/placeholder"
	"outreach/pkg/validator"
	"outreach/repo"
)

const (
	defaultSingleCampaign = "manual"
	defaultBulkCampaign   = "bulk"

	maxBulkRecipients     = 5000
	contactLookupParallel = 10
)

var (
	ErrSubjectOrTemplateRequired = errors.New("subject or template_id is required")
	ErrContentRequired           = errors.New("html_content or text_content is required")
	ErrNoRecipientsFound         = errors.New("no recipients found")
	ErrInvalidPeriod             = errors.New("invalid period")
)

var statsPeriods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

type EmailHandler interface {
	SendEmail(ctx context.Context, req *SendEmailRequest, res *SendEmailResponse) error
	SendBulkEmails(ctx context.Context, req *SendBulkEmailsRequest, res *SendBulkEmailsResponse) error
	ResendFailedEmails(ctx context.Context, req *ResendFailedEmailsRequest, res *ResendFailedEmailsResponse) error
	TestEmailConnection(ctx context.Context, req *TestEmailConnectionRequest, res *TestEmailConnectionResponse) error
	GetEmailLogs(ctx context.Context, req *GetEmailLogsRequest, res *GetEmailLogsResponse) error
	GetEmailLog(ctx context.Context, req *GetEmailLogRequest, res *GetEmailLogResponse) error
	GetEmailStats(ctx context.Context, req *GetEmailStatsRequest, res *GetEmailStatsResponse) error
}

type emailHandler struct {
	emailService   dep.EmailService
	dispatcher     dispatch.Dispatcher
	reconciler     dispatch.Reconciler
	footerInjector *dispatch.FooterInjector
	emailLogRepo   repo.EmailLogRepo
	templateRepo   repo.TemplateRepo
	contactRepo    repo.ContactRepo
	now            func() time.Time
}

func NewEmailHandler(emailService dep.EmailService, dispatcher dispatch.Dispatcher, reconciler dispatch.Reconciler,
	footerInjector *dispatch.FooterInjector, emailLogRepo repo.EmailLogRepo, templateRepo repo.TemplateRepo,
	contactRepo repo.ContactRepo) EmailHandler {
	return &emailHandler{
		emailService:   emailService,
		dispatcher:     dispatcher,
		reconciler:     reconciler,
		footerInjector: footerInjector,
		emailLogRepo:   emailLogRepo,
		templateRepo:   templateRepo,
		contactRepo:    contactRepo,
		now:            time.Now,
	}
}

// content is the unrendered subject and bodies of a send, taken from a template or the request.
type content struct {
	subject     string
	htmlContent string
	textContent string
	templateID  uint64
}

func (c *content) render(data map[string]string) (subject, htmlContent, textContent string) {
	return placeholder.Render(c.subject, data),
		placeholder.Render(c.htmlContent, data),
		placeholder.Render(c.textContent, data)
}

func (c *content) templateLabel() string {
	if c.templateID == 0 {
		return ""
	}
	return strconv.FormatUint(c.templateID, 10)
}

func (h *emailHandler) resolveContent(ctx context.Context, templateID *uint64, subject, htmlContent, textContent *string) (*content, error) {
	if templateID == nil {
		if subject == nil || *subject == "" {
			return nil, errutil.ValidationError(ErrSubjectOrTemplateRequired)
		}
		if (htmlContent == nil || *htmlContent == "") && (textContent == nil || *textContent == "") {
			return nil, errutil.ValidationError(ErrContentRequired)
		}
		c := &content{subject: *subject}
		if htmlContent != nil {
			c.htmlContent = *htmlContent
		}
		if textContent != nil {
			c.textContent = *textContent
		}
		return c, nil
	}

	template, err := h.templateRepo.GetByID(ctx, *templateID)
	if err != nil {
		if !errors.Is(err, repo.ErrTemplateNotFound) {
			log.Ctx(ctx).Error().Msgf("get template failed: %v, template_id: %d", err, *templateID)
		}
		return nil, err
	}

	return &content{
		subject:     template.GetSubject(),
		htmlContent: template.GetHtmlContent(),
		textContent: template.GetTextContent(),
		templateID:  template.GetID(),
	}, nil
}

// findContact returns nil without error when the address is not a known contact.
func (h *emailHandler) findContact(ctx context.Context, email string) (*entity.Contact, error) {
	contact, err := h.contactRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrContactNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return contact, nil
}

func (h *emailHandler) incrUsageCount(ctx context.Context, templateID, delta uint64) {
	if templateID == 0 || delta == 0 {
		return
	}
	if err := h.templateRepo.IncrUsageCount(ctx, templateID, delta); err != nil {
		log.Ctx(ctx).Error().Msgf("incr template usage count failed: %v, template_id: %d", err, templateID)
	}
}

type SendEmailRequest struct {
	ContextInfo

	To           *string           `json:"to,omitempty"`
	Subject      *string           `json:"subject,omitempty"`
	HtmlContent  *string           `json:"html_content,omitempty"`
	TextContent  *string           `json:"text_content,omitempty"`
	TemplateID   *uint64           `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Campaign     *string           `json:"campaign,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

func (req *SendEmailRequest) GetTo() string {
	if req != nil && req.To != nil {
		return *req.To
	}
	return ""
}

func (req *SendEmailRequest) GetCampaign() string {
	if req != nil && req.Campaign != nil && *req.Campaign != "" {
		return *req.Campaign
	}
	return defaultSingleCampaign
}

type SendEmailResponse struct {
	Success    *bool   `json:"success,omitempty"`
	EmailLogID *uint64 `json:"email_log_id,omitempty"`
	MessageID  *string `json:"message_id,omitempty"`
	Error      *string `json:"error,omitempty"`
}

var SendEmailValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo":   ContextInfoValidator,
	"to":            EmailValidator(false),
	"subject":       &validator.String{Optional: true, MaxLen: 255},
	"html_content":  &validator.String{Optional: true},
	"text_content":  &validator.String{Optional: true},
	"template_id":   &validator.UInt64{Optional: true, Min: 1},
	"template_data": TemplateDataValidator(),
	"campaign":      CampaignValidator(),
	"tags":          TagsValidator(),
})

func (h *emailHandler) SendEmail(ctx context.Context, req *SendEmailRequest, res *SendEmailResponse) error {
	if err := SendEmailValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	c, err := h.resolveContent(ctx, req.TemplateID, req.Subject, req.HtmlContent, req.TextContent)
	if err != nil {
		return err
	}

	contact, err := h.findContact(ctx, req.GetTo())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get contact failed: %v", err)
		return err
	}

	data := req.TemplateData
	if contact != nil {
		data = placeholder.Merge(contact.TemplateData(), req.TemplateData)
	}
	subject, htmlContent, textContent := c.render(data)

	email := &dep.Email{
		To:          req.GetTo(),
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
		Campaign:    req.GetCampaign(),
		Template:    c.templateLabel(),
	}
	if contact != nil {
		email.ContactID = contact.GetID()
		if htmlContent != "" {
			email.HtmlContent = h.footerInjector.AddComplianceFooter(htmlContent, contact.GetID())
		}
	}

	// a client disconnect must not abandon a send that is already in flight
	ctx = context.WithoutCancel(ctx)

	emails := []*dep.Email{email}
	outcomes := h.dispatcher.SendAll(ctx, emails)

	emailLog, err := h.reconciler.RecordCampaign(ctx, emails, outcomes, &dispatch.CampaignMeta{
		Subject:      subject,
		HtmlContent:  htmlContent,
		TextContent:  textContent,
		TemplateID:   c.templateID,
		TemplateData: req.TemplateData,
		SenderID:     req.GetOperatorID(),
		Campaign:     req.GetCampaign(),
		Tags:         req.Tags,
	})
	if err != nil {
		return err
	}

	outcome := outcomes[0]
	res.Success = goutil.Bool(outcome.Success)
	res.EmailLogID = emailLog.ID

	if !outcome.Success {
		res.Error = goutil.String(outcome.Error)
		return errutil.InternalError(errors.New("failed to send email"))
	}

	res.MessageID = goutil.String(outcome.MessageID)
	h.incrUsageCount(ctx, c.templateID, 1)

	return nil
}

type BulkRecipient struct {
	Email        *string           `json:"email,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

func (r *BulkRecipient) GetEmail() string {
	if r != nil && r.Email != nil {
		return *r.Email
	}
	return ""
}

type SendBulkEmailsRequest struct {
	ContextInfo

	Recipients          []*BulkRecipient      `json:"recipients,omitempty"`
	Filters             *entity.ContactFilter `json:"filters,omitempty"`
	Subject             *string               `json:"subject,omitempty"`
	HtmlContent         *string               `json:"html_content,omitempty"`
	TextContent         *string               `json:"text_content,omitempty"`
	TemplateID          *uint64               `json:"template_id,omitempty"`
	DefaultTemplateData map[string]string     `json:"default_template_data,omitempty"`
	Campaign            *string               `json:"campaign,omitempty"`
	Tags                []string              `json:"tags,omitempty"`
}

func (req *SendBulkEmailsRequest) GetCampaign() string {
	if req != nil && req.Campaign != nil && *req.Campaign != "" {
		return *req.Campaign
	}
	return defaultBulkCampaign
}

type SendBulkEmailsResponse struct {
	EmailLogID      *uint64 `json:"email_log_id,omitempty"`
	TotalRecipients *uint64 `json:"total_recipients,omitempty"`
	SuccessCount    *uint64 `json:"success_count,omitempty"`
	FailureCount    *uint64 `json:"failure_count,omitempty"`
	SuccessRate     *string `json:"success_rate,omitempty"`
}

var bulkRecipientValidator = validator.MustForm(map[string]validator.Validator{
	"email":         EmailValidator(false),
	"template_data": TemplateDataValidator(),
})

var SendBulkEmailsValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"recipients": &validator.Slice{
		Optional:  true,
		MaxLen:    maxBulkRecipients,
		Validator: bulkRecipientValidator,
	},
	"subject":               &validator.String{Optional: true, MaxLen: 255},
	"html_content":          &validator.String{Optional: true},
	"text_content":          &validator.String{Optional: true},
	"template_id":           &validator.UInt64{Optional: true, Min: 1},
	"default_template_data": TemplateDataValidator(),
	"campaign":              CampaignValidator(),
	"tags":                  TagsValidator(),
})

// bulkTarget is one resolved recipient of a bulk send.
type bulkTarget struct {
	email   string
	data    map[string]string
	contact *entity.Contact
}

func (h *emailHandler) SendBulkEmails(ctx context.Context, req *SendBulkEmailsRequest, res *SendBulkEmailsResponse) error {
	if err := SendBulkEmailsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	c, err := h.resolveContent(ctx, req.TemplateID, req.Subject, req.HtmlContent, req.TextContent)
	if err != nil {
		return err
	}

	targets, err := h.resolveTargets(ctx, req)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		return errutil.ValidationError(ErrNoRecipientsFound)
	}

	emails := make([]*dep.Email, len(targets))
	for i, target := range targets {
		subject, htmlContent, textContent := c.render(target.data)
		email := &dep.Email{
			To:          target.email,
			Subject:     subject,
			HtmlContent: htmlContent,
			TextContent: textContent,
			Campaign:    req.GetCampaign(),
			Template:    c.templateLabel(),
		}
		if target.contact != nil {
			email.ContactID = target.contact.GetID()
			if htmlContent != "" {
				email.HtmlContent = h.footerInjector.AddComplianceFooter(htmlContent, email.ContactID)
			}
		}
		emails[i] = email
	}

	ctx = context.WithoutCancel(ctx)

	outcomes := h.dispatcher.SendAll(ctx, emails)

	// the unrendered content is kept so a resend can render it again per recipient
	emailLog, err := h.reconciler.RecordCampaign(ctx, emails, outcomes, &dispatch.CampaignMeta{
		Subject:      c.subject,
		HtmlContent:  c.htmlContent,
		TextContent:  c.textContent,
		TemplateID:   c.templateID,
		TemplateData: req.DefaultTemplateData,
		SenderID:     req.GetOperatorID(),
		Campaign:     req.GetCampaign(),
		Tags:         req.Tags,
	})
	if err != nil {
		return err
	}

	h.incrUsageCount(ctx, c.templateID, emailLog.GetSuccessCount())

	res.EmailLogID = emailLog.ID
	res.TotalRecipients = emailLog.TotalRecipients
	res.SuccessCount = emailLog.SuccessCount
	res.FailureCount = emailLog.FailureCount
	res.SuccessRate = goutil.String(goutil.Percent(emailLog.GetSuccessCount(), emailLog.GetTotalRecipients()))

	return nil
}

// resolveTargets builds the recipient list from the request, or from subscribed contacts when none is given.
// Placeholder data is layered as contact fields, then default data, then per-recipient data.
func (h *emailHandler) resolveTargets(ctx context.Context, req *SendBulkEmailsRequest) ([]*bulkTarget, error) {
	if len(req.Recipients) == 0 {
		f := req.Filters
		if f == nil {
			f = new(entity.ContactFilter)
		}

		contacts, err := h.contactRepo.GetSubscribed(ctx, f)
		if err != nil {
			log.Ctx(ctx).Error().Msgf("get subscribed contacts failed: %v", err)
			return nil, err
		}

		targets := make([]*bulkTarget, len(contacts))
		for i, contact := range contacts {
			targets[i] = &bulkTarget{
				email:   contact.GetEmail(),
				data:    placeholder.Merge(contact.TemplateData(), req.DefaultTemplateData),
				contact: contact,
			}
		}
		return targets, nil
	}

	targets := make([]*bulkTarget, len(req.Recipients))

	g := new(errgroup.Group)
	g.SetLimit(contactLookupParallel)

	for i, recipient := range req.Recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			target := &bulkTarget{
				email: recipient.GetEmail(),
				data:  placeholder.Merge(req.DefaultTemplateData, recipient.TemplateData),
			}

			// footers are best effort, a failed lookup only costs this recipient its footer
			contact, err := h.findContact(ctx, target.email)
			if err != nil {
				log.Ctx(ctx).Warn().Msgf("get contact failed: %v, email: %s", err, target.email)
			}
			if contact != nil {
				target.contact = contact
				target.data = placeholder.Merge(contact.TemplateData(), target.data)
			}

			targets[i] = target
			return nil
		})
	}
	_ = g.Wait()

	return targets, nil
}

type ResendFailedEmailsRequest struct {
	ContextInfo

	EmailLogID *uint64 `json:"email_log_id,omitempty"`
}

func (req *ResendFailedEmailsRequest) GetEmailLogID() uint64 {
	if req != nil && req.EmailLogID != nil {
		return *req.EmailLogID
	}
	return 0
}

type ResendFailedEmailsResponse struct {
	*dispatch.ResendResult
}

var ResendFailedEmailsValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo":  ContextInfoValidator,
	"email_log_id": &validator.UInt64{Min: 1},
})

func (h *emailHandler) ResendFailedEmails(ctx context.Context, req *ResendFailedEmailsRequest, res *ResendFailedEmailsResponse) error {
	if err := ResendFailedEmailsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	result, err := h.reconciler.ResendFailed(context.WithoutCancel(ctx), req.GetEmailLogID())
	if err != nil {
		if code, _ := errutil.ParseHttpError(err); code == http.StatusInternalServerError {
			log.Ctx(ctx).Error().Msgf("resend failed emails failed: %v, email_log_id: %d", err, req.GetEmailLogID())
		}
		return err
	}

	res.ResendResult = result

	return nil
}

type TestEmailConnectionRequest struct {
	ContextInfo
}

type TestEmailConnectionResponse struct {
	Success *bool   `json:"success,omitempty"`
	Message *string `json:"message,omitempty"`
	Error   *string `json:"error,omitempty"`
}

var TestEmailConnectionValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
})

func (h *emailHandler) TestEmailConnection(ctx context.Context, req *TestEmailConnectionRequest, res *TestEmailConnectionResponse) error {
	if err := TestEmailConnectionValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	if err := h.emailService.TestConnection(ctx); err != nil {
		log.Ctx(ctx).Warn().Msgf("email connection test failed: %v", err)
		res.Success = goutil.Bool(false)
		res.Error = goutil.String(err.Error())
		return nil
	}

	res.Success = goutil.Bool(true)
	res.Message = goutil.String("email service connection is working")

	return nil
}

type GetEmailLogsRequest struct {
	ContextInfo

	Campaign   *string `schema:"campaign"`
	TemplateID *uint64 `schema:"template_id"`
	Status     *string `schema:"status"`
	StartTime  *uint64 `schema:"start_time"`
	EndTime    *uint64 `schema:"end_time"`
	Page       *uint32 `schema:"page"`
	Limit      *uint32 `schema:"limit"`
}

func (req *GetEmailLogsRequest) ToEmailLogFilter() *entity.EmailLogFilter {
	f := &entity.EmailLogFilter{
		TemplateID: req.TemplateID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if req.Campaign != nil && *req.Campaign != "" {
		f.Campaign = req.Campaign
	}
	if req.Status != nil {
		if status, ok := entity.RecipientStatuses[*req.Status]; ok {
			f.Status = &status
		}
	}
	return f
}

func (req *GetEmailLogsRequest) ToPagination() *repo.Pagination {
	return &repo.Pagination{
		Page:  req.Page,
		Limit: req.Limit,
	}
}

type GetEmailLogsResponse struct {
	EmailLogs  []*entity.EmailLog `json:"email_logs"`
	Pagination *repo.Pagination   `json:"pagination,omitempty"`
}

var GetEmailLogsValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"campaign":    CampaignValidator(),
	"template_id": &validator.UInt64{Optional: true, Min: 1},
	"status": &validator.String{
		Optional:   true,
		Validators: []validator.StringFunc{oneOf(recipientStatusNames())},
	},
	"start_time": &validator.UInt64{Optional: true},
	"end_time":   &validator.UInt64{Optional: true},
	"page":       PageValidator(),
	"limit":      LimitValidator(),
})

func (h *emailHandler) GetEmailLogs(ctx context.Context, req *GetEmailLogsRequest, res *GetEmailLogsResponse) error {
	if err := GetEmailLogsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	emailLogs, pagination, err := h.emailLogRepo.GetMany(ctx, req.ToEmailLogFilter(), req.ToPagination())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get email logs failed: %v", err)
		return err
	}

	res.EmailLogs = emailLogs
	res.Pagination = pagination

	return nil
}

type GetEmailLogRequest struct {
	ContextInfo

	EmailLogID *uint64 `schema:"email_log_id"`
}

type GetEmailLogResponse struct {
	EmailLog *entity.EmailLog `json:"email_log,omitempty"`
}

var GetEmailLogValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo":  ContextInfoValidator,
	"email_log_id": &validator.UInt64{Min: 1},
})

func (h *emailHandler) GetEmailLog(ctx context.Context, req *GetEmailLogRequest, res *GetEmailLogResponse) error {
	if err := GetEmailLogValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	emailLog, err := h.emailLogRepo.GetByID(ctx, *req.EmailLogID)
	if err != nil {
		if !errors.Is(err, repo.ErrEmailLogNotFound) {
			log.Ctx(ctx).Error().Msgf("get email log failed: %v, email_log_id: %d", err, *req.EmailLogID)
		}
		return err
	}

	res.EmailLog = emailLog

	return nil
}

type GetEmailStatsRequest struct {
	ContextInfo

	Period *string `schema:"period"`
}

func (req *GetEmailStatsRequest) GetPeriod() string {
	if req != nil && req.Period != nil && *req.Period != "" {
		return *req.Period
	}
	return "30d"
}

type GetEmailStatsResponse struct {
	*entity.EmailStats
}

var GetEmailStatsValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"period": &validator.String{
		Optional:   true,
		Validators: []validator.StringFunc{oneOf([]string{"7d", "30d", "90d"})},
	},
})

func (h *emailHandler) GetEmailStats(ctx context.Context, req *GetEmailStatsRequest, res *GetEmailStatsResponse) error {
	if err := GetEmailStatsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	window, ok := statsPeriods[req.GetPeriod()]
	if !ok {
		return errutil.ValidationError(ErrInvalidPeriod)
	}
	since := uint64(h.now().Add(-window).Unix())

	stats, err := h.emailLogRepo.GetStats(ctx, since)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get email stats failed: %v", err)
		return err
	}
	stats.Period = req.GetPeriod()

	for _, ts := range stats.TopTemplates {
		template, err := h.templateRepo.GetByID(ctx, ts.TemplateID)
		if err != nil {
			if !errors.Is(err, repo.ErrTemplateNotFound) {
				log.Ctx(ctx).Warn().Msgf("get stats template name failed, template_id: %d, err: %v", ts.TemplateID, err)
			}
			continue
		}
		ts.TemplateName = template.GetName()
	}

	res.EmailStats = stats

	return nil
}

func recipientStatusNames() []string {
	names := make([]string, 0, len(entity.RecipientStatuses))
	for name := range entity.RecipientStatuses {
		names = append(names, name)
	}
	return names
}
