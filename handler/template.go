package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/validator"
	"outreach/repo"
)

var ErrDuplicatePlaceholder = errors.New("duplicate placeholder key")

type TemplateHandler interface {
	CreateTemplate(ctx context.Context, req *CreateTemplateRequest, res *CreateTemplateResponse) error
	GetTemplate(ctx context.Context, req *GetTemplateRequest, res *GetTemplateResponse) error
	GetTemplates(ctx context.Context, req *GetTemplatesRequest, res *GetTemplatesResponse) error
	PreviewTemplate(ctx context.Context, req *PreviewTemplateRequest, res *PreviewTemplateResponse) error
}

type templateHandler struct {
	templateRepo repo.TemplateRepo
}

func NewTemplateHandler(templateRepo repo.TemplateRepo) TemplateHandler {
	return &templateHandler{
		templateRepo: templateRepo,
	}
}

type CreateTemplateRequest struct {
	ContextInfo

	Name         *string               `json:"name,omitempty"`
	Subject      *string               `json:"subject,omitempty"`
	HtmlContent  *string               `json:"html_content,omitempty"`
	TextContent  *string               `json:"text_content,omitempty"`
	Type         *string               `json:"type,omitempty"`
	Placeholders []*entity.Placeholder `json:"placeholders,omitempty"`
}

func (req *CreateTemplateRequest) GetType() entity.TemplateType {
	if req != nil && req.Type != nil {
		return entity.TemplateType(*req.Type)
	}
	return entity.TemplateTypeCustom
}

func (req *CreateTemplateRequest) ToTemplate() *entity.Template {
	var textContent string
	if req.TextContent != nil {
		textContent = *req.TextContent
	}
	return entity.NewTemplate(req.GetOperatorID(), *req.Name, *req.Subject, *req.HtmlContent, textContent,
		req.GetType(), req.Placeholders)
}

type CreateTemplateResponse struct {
	Template *entity.Template `json:"template,omitempty"`
}

var placeholderValidator = validator.MustForm(map[string]validator.Validator{
	"key": &validator.String{
		MinLen: 1,
		MaxLen: 64,
		Regex:  placeholderKeyRegex,
	},
	"description":   &validator.String{Optional: true, MaxLen: 255},
	"default_value": &validator.String{Optional: true, MaxLen: 1024},
})

var CreateTemplateValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo":  ContextInfoValidator,
	"name":         &validator.String{MinLen: 1, MaxLen: 128},
	"subject":      &validator.String{MinLen: 1, MaxLen: 255},
	"html_content": &validator.String{MinLen: 1},
	"text_content": &validator.String{Optional: true},
	"type": &validator.String{
		Optional:   true,
		Validators: []validator.StringFunc{oneOf(entity.TemplateTypes)},
	},
	"placeholders": &validator.Slice{
		Optional:  true,
		MaxLen:    50,
		Validator: placeholderValidator,
	},
})

func (h *templateHandler) CreateTemplate(ctx context.Context, req *CreateTemplateRequest, res *CreateTemplateResponse) error {
	if err := CreateTemplateValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	seen := make(map[string]bool)
	for _, p := range req.Placeholders {
		if seen[p.GetKey()] {
			return errutil.ValidationError(ErrDuplicatePlaceholder)
		}
		seen[p.GetKey()] = true
	}

	template := req.ToTemplate()
	id, err := h.templateRepo.Create(ctx, template)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("create template failed: %v", err)
		return err
	}

	template.ID = goutil.Uint64(id)
	res.Template = template

	return nil
}

type GetTemplateRequest struct {
	ContextInfo

	TemplateID *uint64 `schema:"template_id"`
}

type GetTemplateResponse struct {
	Template *entity.Template `json:"template,omitempty"`
}

var GetTemplateValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"template_id": &validator.UInt64{Min: 1},
})

func (h *templateHandler) GetTemplate(ctx context.Context, req *GetTemplateRequest, res *GetTemplateResponse) error {
	if err := GetTemplateValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	template, err := h.templateRepo.GetByID(ctx, *req.TemplateID)
	if err != nil {
		if !errors.Is(err, repo.ErrTemplateNotFound) {
			log.Ctx(ctx).Error().Msgf("get template failed: %v, template_id: %d", err, *req.TemplateID)
		}
		return err
	}

	res.Template = template

	return nil
}

type GetTemplatesRequest struct {
	ContextInfo

	Type     *string `schema:"type"`
	IsActive *bool   `schema:"is_active"`
	Keyword  *string `schema:"keyword"`
	Page     *uint32 `schema:"page"`
	Limit    *uint32 `schema:"limit"`
}

func (req *GetTemplatesRequest) ToTemplateFilter() *entity.TemplateFilter {
	f := &entity.TemplateFilter{
		IsActive: req.IsActive,
	}
	if req.Type != nil && *req.Type != "" {
		t := entity.TemplateType(*req.Type)
		f.Type = &t
	}
	if req.Keyword != nil && *req.Keyword != "" {
		f.Keyword = req.Keyword
	}
	return f
}

type GetTemplatesResponse struct {
	Templates  []*entity.Template `json:"templates"`
	Pagination *repo.Pagination   `json:"pagination,omitempty"`
}

var GetTemplatesValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"type": &validator.String{
		Optional:   true,
		Validators: []validator.StringFunc{oneOf(entity.TemplateTypes)},
	},
	"keyword": &validator.String{Optional: true, MaxLen: 64},
	"page":    PageValidator(),
	"limit":   LimitValidator(),
})

func (h *templateHandler) GetTemplates(ctx context.Context, req *GetTemplatesRequest, res *GetTemplatesResponse) error {
	if err := GetTemplatesValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	templates, pagination, err := h.templateRepo.GetMany(ctx, req.ToTemplateFilter(), &repo.Pagination{
		Page:  req.Page,
		Limit: req.Limit,
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get templates failed: %v", err)
		return err
	}

	res.Templates = templates
	res.Pagination = pagination

	return nil
}

type PreviewTemplateRequest struct {
	ContextInfo

	TemplateID *uint64           `json:"template_id,omitempty"`
	SampleData map[string]string `json:"sample_data,omitempty"`
}

type PreviewTemplateResponse struct {
	Preview *entity.RenderedContent `json:"preview,omitempty"`
}

var PreviewTemplateValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"template_id": &validator.UInt64{Min: 1},
	"sample_data": TemplateDataValidator(),
})

func (h *templateHandler) PreviewTemplate(ctx context.Context, req *PreviewTemplateRequest, res *PreviewTemplateResponse) error {
	if err := PreviewTemplateValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	template, err := h.templateRepo.GetByID(ctx, *req.TemplateID)
	if err != nil {
		if !errors.Is(err, repo.ErrTemplateNotFound) {
			log.Ctx(ctx).Error().Msgf("get template failed: %v, template_id: %d", err, *req.TemplateID)
		}
		return err
	}

	res.Preview = template.RenderWithDefaults(req.SampleData)

	return nil
}
