package dep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/rs/zerolog/log"

	"outreach/config"
)

const (
	pathSendEmail  = "/smtp/email"
	pathGetAccount = "/account"
)

type brevoResp struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// sendSmtpEmailBody shadows ScheduledAt so an unscheduled send omits the field.
type sendSmtpEmailBody struct {
	brevo.SendSmtpEmail
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type brevoService struct {
	apiKey  string
	baseURL string
	mailCfg config.Mail
	client  *http.Client
	now     func() time.Time
}

func NewBrevoService(_ context.Context, cfg config.Brevo, mailCfg config.Mail) (EmailService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brevo api key is required")
	}

	return &brevoService{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mailCfg: mailCfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}, nil
}

func (s *brevoService) SendEmail(ctx context.Context, email *Email) *Outcome {
	ts := uint64(s.now().Unix())

	body := sendSmtpEmailBody{
		SendSmtpEmail: brevo.SendSmtpEmail{
			Sender: &brevo.SendSmtpEmailSender{
				Name:  s.mailCfg.SenderName,
				Email: s.mailCfg.SenderEmail,
			},
			ReplyTo: &brevo.SendSmtpEmailReplyTo{
				Email: s.mailCfg.SenderEmail,
			},
			To:          []brevo.SendSmtpEmailTo{{Email: email.To}},
			Subject:     email.Subject,
			HtmlContent: email.HtmlContent,
			TextContent: email.TextContent,
			Tags:        []string{email.GetCampaign(), email.GetTemplate()},
		},
	}

	b, err := s.doHttpRequest(ctx, http.MethodPost, pathSendEmail, body)
	if err != nil {
		log.Ctx(ctx).Warn().Msgf("send email via brevo failed, to: %s, err: %v", email.To, err)
		return failedOutcome(email, err, ts)
	}

	created := new(brevo.CreateSmtpEmail)
	if err := json.Unmarshal(b, created); err != nil {
		return failedOutcome(email, err, ts)
	}

	return &Outcome{
		Email:     email.To,
		Success:   true,
		MessageID: created.MessageId,
		Timestamp: ts,
	}
}

func (s *brevoService) TestConnection(ctx context.Context) error {
	b, err := s.doHttpRequest(ctx, http.MethodGet, pathGetAccount, nil)
	if err != nil {
		return err
	}

	account := new(brevo.GetAccount)
	if err := json.Unmarshal(b, account); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Msgf("brevo account reachable, email: %s", account.Email)

	return nil
}

func (s *brevoService) Close(_ context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *brevoService) doHttpRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Add("accept", "application/json")
	req.Header.Add("content-type", "application/json")
	req.Header.Add("api-key", s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = res.Body.Close()
	}()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode >= http.StatusBadRequest {
		brevoResp := new(brevoResp)
		if err := json.Unmarshal(b, brevoResp); err != nil || brevoResp.Message == "" {
			return nil, fmt.Errorf("encounter brevo error, status: %d", res.StatusCode)
		}
		return nil, fmt.Errorf("encounter brevo error: %s, code: %s", brevoResp.Message, brevoResp.Code)
	}

	return b, nil
}
