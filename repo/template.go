package repo

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
)

var (
	ErrTemplateNotFound = errutil.NotFoundError(errors.New("template not found"))
)

type Template struct {
	ID           *uint64 `gorm:"primaryKey"`
	Name         *string
	Subject      *string
	HtmlContent  *string
	TextContent  *string
	TemplateType *string
	Placeholders *string
	IsActive     *bool
	UsageCount   *uint64
	CreatorID    *uint64
	CreateTime   *uint64
	UpdateTime   *uint64
}

func (m *Template) TableName() string {
	return "template_tab"
}

func (m *Template) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *Template) GetTemplateType() string {
	if m != nil && m.TemplateType != nil {
		return *m.TemplateType
	}
	return ""
}

func (m *Template) GetPlaceholders() string {
	if m != nil && m.Placeholders != nil {
		return *m.Placeholders
	}
	return ""
}

type TemplateRepo interface {
	Create(ctx context.Context, template *entity.Template) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Template, error)
	GetActiveByType(ctx context.Context, templateType entity.TemplateType) (*entity.Template, error)
	GetMany(ctx context.Context, f *entity.TemplateFilter, pagination *Pagination) ([]*entity.Template, *Pagination, error)
	IncrUsageCount(ctx context.Context, id uint64, delta uint64) error
}

type templateRepo struct {
	cacheKeyPrefix string
	baseRepo       BaseRepo
	baseCache      BaseCache
}

func NewTemplateRepo(ctx context.Context, baseRepo BaseRepo) TemplateRepo {
	return &templateRepo{
		cacheKeyPrefix: "template",
		baseRepo:       baseRepo,
		baseCache:      NewBaseCache(ctx),
	}
}

func (r *templateRepo) setCache(ctx context.Context, template *entity.Template) {
	r.baseCache.Set(ctx, r.cacheKeyPrefix, template.GetID(), template)
}

func (r *templateRepo) getFromCache(ctx context.Context, id uint64) *entity.Template {
	if v, ok := r.baseCache.Get(ctx, r.cacheKeyPrefix, id); ok {
		return v.(*entity.Template)
	}
	return nil
}

func (r *templateRepo) Create(ctx context.Context, template *entity.Template) (uint64, error) {
	templateModel, err := ToTemplateModel(template)
	if err != nil {
		return 0, err
	}

	if err := r.baseRepo.Create(ctx, templateModel); err != nil {
		return 0, err
	}

	return templateModel.GetID(), nil
}

func (r *templateRepo) GetByID(ctx context.Context, id uint64) (*entity.Template, error) {
	if template := r.getFromCache(ctx, id); template != nil {
		return template, nil
	}

	template, err := r.get(ctx, []*Condition{
		{
			Field: "id",
			Value: id,
			Op:    OpEq,
		},
	})
	if err != nil {
		return nil, err
	}

	r.setCache(ctx, template)

	return template, nil
}

func (r *templateRepo) GetActiveByType(ctx context.Context, templateType entity.TemplateType) (*entity.Template, error) {
	return r.get(ctx, []*Condition{
		{
			Field: "template_type",
			Value: string(templateType),
			Op:    OpEq,
		},
		{
			Field: "is_active",
			Value: true,
			Op:    OpEq,
		},
	})
}

func (r *templateRepo) GetMany(ctx context.Context, f *entity.TemplateFilter, pagination *Pagination) ([]*entity.Template, *Pagination, error) {
	if f == nil {
		f = new(entity.TemplateFilter)
	}

	var (
		templateType *string
		keyword      *string
	)
	if f.Type != nil {
		templateType = goutil.String(string(*f.Type))
	}
	if f.Keyword != nil && *f.Keyword != "" {
		keyword = goutil.String("%" + *f.Keyword + "%")
	}

	res, paging, err := r.baseRepo.GetMany(ctx, new(Template), &Filter{
		Conditions: []*Condition{
			{
				Field: "template_type",
				Value: templateType,
				Op:    OpEq,
			},
			{
				Field: "is_active",
				Value: f.IsActive,
				Op:    OpEq,
			},
			{
				Field: "name",
				Value: keyword,
				Op:    OpLike,
			},
		},
		Pagination: pagination,
	})
	if err != nil {
		return nil, nil, err
	}

	templates := make([]*entity.Template, len(res))
	for i, m := range res {
		template, err := ToTemplate(m.(*Template))
		if err != nil {
			return nil, nil, err
		}
		templates[i] = template
	}

	return templates, paging, nil
}

func (r *templateRepo) IncrUsageCount(ctx context.Context, id uint64, delta uint64) error {
	if delta == 0 {
		return nil
	}

	if err := r.baseRepo.Increment(ctx, new(Template), "usage_count", delta, &Filter{
		Conditions: []*Condition{
			{
				Field: "id",
				Value: id,
				Op:    OpEq,
			},
		},
	}); err != nil {
		return err
	}

	r.baseCache.Del(ctx, r.cacheKeyPrefix, id)

	return nil
}

func (r *templateRepo) get(ctx context.Context, conditions []*Condition) (*entity.Template, error) {
	templateModel := new(Template)

	if err := r.baseRepo.Get(ctx, templateModel, &Filter{
		Conditions: conditions,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	return ToTemplate(templateModel)
}

func ToTemplate(m *Template) (*entity.Template, error) {
	placeholders := make([]*entity.Placeholder, 0)
	if m.GetPlaceholders() != "" {
		if err := json.Unmarshal([]byte(m.GetPlaceholders()), &placeholders); err != nil {
			return nil, err
		}
	}

	return &entity.Template{
		ID:           m.ID,
		Name:         m.Name,
		Subject:      m.Subject,
		HtmlContent:  m.HtmlContent,
		TextContent:  m.TextContent,
		Type:         entity.TemplateType(m.GetTemplateType()),
		Placeholders: placeholders,
		IsActive:     m.IsActive,
		UsageCount:   m.UsageCount,
		CreatorID:    m.CreatorID,
		CreateTime:   m.CreateTime,
		UpdateTime:   m.UpdateTime,
	}, nil
}

func ToTemplateModel(e *entity.Template) (*Template, error) {
	placeholders := e.Placeholders
	if placeholders == nil {
		placeholders = make([]*entity.Placeholder, 0)
	}

	b, err := json.Marshal(placeholders)
	if err != nil {
		return nil, err
	}

	return &Template{
		ID:           e.ID,
		Name:         e.Name,
		Subject:      e.Subject,
		HtmlContent:  e.HtmlContent,
		TextContent:  e.TextContent,
		TemplateType: goutil.String(string(e.Type)),
		Placeholders: goutil.String(string(b)),
		IsActive:     e.IsActive,
		UsageCount:   e.UsageCount,
		CreatorID:    e.CreatorID,
		CreateTime:   e.CreateTime,
		UpdateTime:   e.UpdateTime,
	}, nil
}
