package entity

import (
	"time"

	"outreach/pkg/goutil"
	"outreach/pkg/placeholder"
)

type TemplateType string

const (
	TemplateTypeWelcome    TemplateType = "welcome"
	TemplateTypeEvent      TemplateType = "event"
	TemplateTypeNewsletter TemplateType = "newsletter"
	TemplateTypeCustom     TemplateType = "custom"
)

var TemplateTypes = []string{
	string(TemplateTypeWelcome),
	string(TemplateTypeEvent),
	string(TemplateTypeNewsletter),
	string(TemplateTypeCustom),
}

type Placeholder struct {
	Key          *string `json:"key,omitempty"`
	Description  *string `json:"description,omitempty"`
	DefaultValue *string `json:"default_value,omitempty"`
}

func (p *Placeholder) GetKey() string {
	if p != nil && p.Key != nil {
		return *p.Key
	}
	return ""
}

func (p *Placeholder) GetDefaultValue() string {
	if p != nil && p.DefaultValue != nil {
		return *p.DefaultValue
	}
	return ""
}

type Template struct {
	ID           *uint64        `json:"id,omitempty"`
	Name         *string        `json:"name,omitempty"`
	Subject      *string        `json:"subject,omitempty"`
	HtmlContent  *string        `json:"html_content,omitempty"`
	TextContent  *string        `json:"text_content,omitempty"`
	Type         TemplateType   `json:"type,omitempty"`
	Placeholders []*Placeholder `json:"placeholders,omitempty"`
	IsActive     *bool          `json:"is_active,omitempty"`
	UsageCount   *uint64        `json:"usage_count,omitempty"`
	CreatorID    *uint64        `json:"creator_id,omitempty"`
	CreateTime   *uint64        `json:"create_time,omitempty"`
	UpdateTime   *uint64        `json:"update_time,omitempty"`
}

func NewTemplate(creatorID uint64, name, subject, htmlContent, textContent string, templateType TemplateType, placeholders []*Placeholder) *Template {
	now := uint64(time.Now().Unix())

	if templateType == "" {
		templateType = TemplateTypeCustom
	}

	return &Template{
		Name:         goutil.String(name),
		Subject:      goutil.String(subject),
		HtmlContent:  goutil.String(htmlContent),
		TextContent:  goutil.String(textContent),
		Type:         templateType,
		Placeholders: placeholders,
		IsActive:     goutil.Bool(true),
		UsageCount:   goutil.Uint64(0),
		CreatorID:    goutil.Uint64(creatorID),
		CreateTime:   goutil.Uint64(now),
		UpdateTime:   goutil.Uint64(now),
	}
}

func (e *Template) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Template) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Template) GetSubject() string {
	if e != nil && e.Subject != nil {
		return *e.Subject
	}
	return ""
}

func (e *Template) GetHtmlContent() string {
	if e != nil && e.HtmlContent != nil {
		return *e.HtmlContent
	}
	return ""
}

func (e *Template) GetTextContent() string {
	if e != nil && e.TextContent != nil {
		return *e.TextContent
	}
	return ""
}

func (e *Template) GetIsActive() bool {
	if e != nil && e.IsActive != nil {
		return *e.IsActive
	}
	return false
}

func (e *Template) GetUsageCount() uint64 {
	if e != nil && e.UsageCount != nil {
		return *e.UsageCount
	}
	return 0
}

// Defaults returns the placeholder default values keyed by placeholder key.
func (e *Template) Defaults() map[string]string {
	defaults := make(map[string]string)
	if e == nil {
		return defaults
	}
	for _, p := range e.Placeholders {
		if p.GetKey() == "" || p.DefaultValue == nil {
			continue
		}
		defaults[p.GetKey()] = p.GetDefaultValue()
	}
	return defaults
}

type RenderedContent struct {
	Subject     string `json:"subject"`
	HtmlContent string `json:"html_content"`
	TextContent string `json:"text_content"`
}

// Render substitutes data into subject and both bodies.
func (e *Template) Render(data map[string]string) *RenderedContent {
	return &RenderedContent{
		Subject:     placeholder.Render(e.GetSubject(), data),
		HtmlContent: placeholder.Render(e.GetHtmlContent(), data),
		TextContent: placeholder.Render(e.GetTextContent(), data),
	}
}

// RenderWithDefaults fills placeholder defaults before applying data, so data always wins.
func (e *Template) RenderWithDefaults(data map[string]string) *RenderedContent {
	return e.Render(placeholder.Merge(e.Defaults(), data))
}

type TemplateFilter struct {
	Type     *TemplateType
	IsActive *bool
	Keyword  *string
}
