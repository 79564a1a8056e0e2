package entity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"outreach/pkg/goutil"
)

func TestTemplate_RenderWithDefaults(t *testing.T) {
	t.Parallel()

	tmpl := NewTemplate(1, "welcome", "Hi {{firstName}}", "<p>Hello {{firstName}} from {{club}}</p>", "Hello {{firstName}}", TemplateTypeWelcome, []*Placeholder{
		{Key: goutil.String("firstName"), DefaultValue: goutil.String("there")},
		{Key: goutil.String("club"), DefaultValue: goutil.String("E-Cell")},
		{Key: goutil.String("unused")},
	})

	tests := []struct {
		name string
		data map[string]string
		want *RenderedContent
	}{
		{
			name: "defaults only",
			data: nil,
			want: &RenderedContent{
				Subject:     "Hi there",
				HtmlContent: "<p>Hello there from E-Cell</p>",
				TextContent: "Hello there",
			},
		},
		{
			name: "data overrides defaults",
			data: map[string]string{"firstName": "Asha"},
			want: &RenderedContent{
				Subject:     "Hi Asha",
				HtmlContent: "<p>Hello Asha from E-Cell</p>",
				TextContent: "Hello Asha",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tmpl.RenderWithDefaults(tt.data))
		})
	}
}

func TestTemplate_RenderLeavesUnknownTokens(t *testing.T) {
	t.Parallel()

	tmpl := &Template{Subject: goutil.String("Hi {{firstName}}")}
	require.Equal(t, "Hi {{firstName}}", tmpl.Render(map[string]string{"name": "x"}).Subject)
	require.Equal(t, TemplateTypeCustom, NewTemplate(1, "n", "s", "h", "t", "", nil).Type)
}
