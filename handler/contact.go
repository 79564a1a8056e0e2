package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"outreach/dep"
	"outreach/dispatch"
	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/placeholder"
	"outreach/pkg/unsubscribe"
	"outreach/pkg/validator"
	"outreach/repo"
)

const welcomeCampaign = "welcome"

var (
	ErrContactExists           = errors.New("contact with this email already exists")
	ErrInvalidUnsubscribeToken = errors.New("invalid or expired unsubscribe link")
)

type ContactHandler interface {
	CreateContact(ctx context.Context, req *CreateContactRequest, res *CreateContactResponse) error
	Unsubscribe(ctx context.Context, req *UnsubscribeRequest, res *UnsubscribeResponse) error
}

type contactHandler struct {
	contactRepo    repo.ContactRepo
	templateRepo   repo.TemplateRepo
	dispatcher     dispatch.Dispatcher
	reconciler     dispatch.Reconciler
	footerInjector *dispatch.FooterInjector
	signer         *unsubscribe.Signer
	now            func() time.Time
	async          func(fn func())
}

func NewContactHandler(contactRepo repo.ContactRepo, templateRepo repo.TemplateRepo, dispatcher dispatch.Dispatcher,
	reconciler dispatch.Reconciler, footerInjector *dispatch.FooterInjector, signer *unsubscribe.Signer) ContactHandler {
	return &contactHandler{
		contactRepo:    contactRepo,
		templateRepo:   templateRepo,
		dispatcher:     dispatcher,
		reconciler:     reconciler,
		footerInjector: footerInjector,
		signer:         signer,
		now:            time.Now,
		async: func(fn func()) {
			go fn()
		},
	}
}

type CreateContactRequest struct {
	ContextInfo

	Email      *string `json:"email,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
	Source     *string `json:"source,omitempty"`
}

func (req *CreateContactRequest) ToContact() *entity.Contact {
	var department, year, source string
	if req.Department != nil {
		department = *req.Department
	}
	if req.Year != nil {
		year = *req.Year
	}
	source = "manual"
	if req.Source != nil && *req.Source != "" {
		source = *req.Source
	}
	return entity.NewContact(*req.Email, *req.FirstName, *req.LastName, department, year, source)
}

type CreateContactResponse struct {
	Contact *entity.Contact `json:"contact,omitempty"`
}

var CreateContactValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"email":       EmailValidator(false),
	"first_name":  &validator.String{MinLen: 1, MaxLen: 64},
	"last_name":   &validator.String{MinLen: 1, MaxLen: 64},
	"department":  &validator.String{Optional: true, MaxLen: 64},
	"year":        &validator.String{Optional: true, MaxLen: 16},
	"source":      &validator.String{Optional: true, MaxLen: 32},
})

func (h *contactHandler) CreateContact(ctx context.Context, req *CreateContactRequest, res *CreateContactResponse) error {
	if err := CreateContactValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	contact := req.ToContact()

	_, err := h.contactRepo.GetByEmail(ctx, contact.GetEmail())
	if err == nil {
		return errutil.ConflictError(ErrContactExists)
	}

	if !errors.Is(err, repo.ErrContactNotFound) {
		log.Ctx(ctx).Error().Msgf("get contact failed: %v", err)
		return err
	}

	id, err := h.contactRepo.Create(ctx, contact)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("create contact failed: %v", err)
		return err
	}

	contact.ID = goutil.Uint64(id)
	res.Contact = contact

	welcomeCtx := context.WithoutCancel(ctx)
	h.async(func() {
		h.sendWelcomeEmail(welcomeCtx, contact)
	})

	return nil
}

// sendWelcomeEmail is best effort: the contact exists whether or not the email goes out.
func (h *contactHandler) sendWelcomeEmail(ctx context.Context, contact *entity.Contact) {
	template, err := h.templateRepo.GetActiveByType(ctx, entity.TemplateTypeWelcome)
	if err != nil {
		if errors.Is(err, repo.ErrTemplateNotFound) {
			log.Ctx(ctx).Info().Msg("no active welcome template, skip welcome email")
		} else {
			log.Ctx(ctx).Error().Msgf("get welcome template failed: %v", err)
		}
		return
	}

	data := placeholder.Merge(contact.TemplateData(), map[string]string{
		"unsubscribeLink": h.footerInjector.UnsubscribeURL(contact.GetID()),
	})
	rendered := template.RenderWithDefaults(data)

	email := &dep.Email{
		To:          contact.GetEmail(),
		Subject:     rendered.Subject,
		HtmlContent: rendered.HtmlContent,
		TextContent: rendered.TextContent,
		Campaign:    welcomeCampaign,
		Template:    strconv.FormatUint(template.GetID(), 10),
		ContactID:   contact.GetID(),
	}
	if email.HtmlContent != "" {
		email.HtmlContent = h.footerInjector.AddComplianceFooter(rendered.HtmlContent, contact.GetID())
	}

	emails := []*dep.Email{email}
	outcomes := h.dispatcher.SendAll(ctx, emails)

	if _, err := h.reconciler.RecordCampaign(ctx, emails, outcomes, &dispatch.CampaignMeta{
		Subject:     rendered.Subject,
		HtmlContent: rendered.HtmlContent,
		TextContent: rendered.TextContent,
		TemplateID:  template.GetID(),
		Campaign:    welcomeCampaign,
	}); err != nil {
		return
	}

	if !outcomes[0].Success {
		log.Ctx(ctx).Warn().Msgf("send welcome email failed: %s, contact_id: %d", outcomes[0].Error, contact.GetID())
		return
	}

	if err := h.templateRepo.IncrUsageCount(ctx, template.GetID(), 1); err != nil {
		log.Ctx(ctx).Error().Msgf("incr template usage count failed: %v, template_id: %d", err, template.GetID())
	}
}

type UnsubscribeRequest struct {
	Token *string `schema:"token"`
}

type UnsubscribeResponse struct {
	Message *string `json:"message,omitempty"`
}

var UnsubscribeValidator = validator.MustForm(map[string]validator.Validator{
	"token": &validator.String{MinLen: 1, MaxLen: 512},
})

func (h *contactHandler) Unsubscribe(ctx context.Context, req *UnsubscribeRequest, res *UnsubscribeResponse) error {
	if err := UnsubscribeValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	contactID, err := h.signer.Verify(*req.Token, h.now())
	if err != nil {
		log.Ctx(ctx).Warn().Msgf("verify unsubscribe token failed: %v", err)
		return errutil.BadRequestError(ErrInvalidUnsubscribeToken)
	}

	if err := h.contactRepo.Unsubscribe(ctx, contactID); err != nil {
		if errors.Is(err, repo.ErrContactNotFound) {
			return errutil.BadRequestError(ErrInvalidUnsubscribeToken)
		}
		log.Ctx(ctx).Error().Msgf("unsubscribe contact failed: %v, contact_id: %d", err, contactID)
		return err
	}

	res.Message = goutil.String("you have been unsubscribed")

	return nil
}
