package dispatch

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"outreach/config"
	"outreach/pkg/unsubscribe"
)

const footerTemplate = `<div style="margin-top:32px;padding-top:16px;border-top:1px solid #e5e7eb;font-size:12px;color:#6b7280;text-align:center">` +
	`<p style="margin:0 0 4px">%s</p>` +
	`<p style="margin:0 0 8px">%s</p>` +
	`<p style="margin:0">You are receiving this email because you subscribed to updates from us. ` +
	`<a href="%s" style="color:#6b7280">Unsubscribe</a></p>` +
	`</div>`

type FooterInjector struct {
	signer      *unsubscribe.Signer
	frontendURL string
	orgName     string
	orgAddress  string
	now         func() time.Time
}

func NewFooterInjector(signer *unsubscribe.Signer, webPages config.WebPages, footer config.Footer) *FooterInjector {
	return &FooterInjector{
		signer:      signer,
		frontendURL: strings.TrimRight(webPages.FrontendURL, "/"),
		orgName:     footer.OrgName,
		orgAddress:  footer.OrgAddress,
		now:         time.Now,
	}
}

func (f *FooterInjector) UnsubscribeURL(contactID uint64) string {
	token := f.signer.Issue(contactID, f.now())
	return fmt.Sprintf("%s%s?token=%s", f.frontendURL, config.PathUnsubscribe, url.QueryEscape(token))
}

// AddComplianceFooter appends the unsubscribe footer for contactID to content.
func (f *FooterInjector) AddComplianceFooter(content string, contactID uint64) string {
	footer := fmt.Sprintf(footerTemplate,
		html.EscapeString(f.orgName),
		html.EscapeString(f.orgAddress),
		html.EscapeString(f.UnsubscribeURL(contactID)),
	)
	return content + footer
}
