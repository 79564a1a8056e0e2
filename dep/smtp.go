package dep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-gomail/gomail"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"outreach/config"
)

var (
	ErrTransportUnavailable = errors.New("mail transport unavailable")
)

type smtpDialer interface {
	Dial() (gomail.SendCloser, error)
}

type smtpService struct {
	cfg     config.SMTP
	mailCfg config.Mail
	dialer  smtpDialer

	newBackOff func() backoff.BackOff
	now        func() time.Time

	mu       sync.Mutex
	verified bool

	// concurrent senders share one in-flight verification
	verifyGroup singleflight.Group
}

// NewSmtpService never dials; the relay is verified on first use so that the
// process starts even when the relay is unreachable.
func NewSmtpService(_ context.Context, cfg config.SMTP, mailCfg config.Mail) EmailService {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Secure

	return newSmtpService(cfg, mailCfg, d)
}

func newSmtpService(cfg config.SMTP, mailCfg config.Mail, dialer smtpDialer) *smtpService {
	return &smtpService{
		cfg:     cfg,
		mailCfg: mailCfg,
		dialer:  dialer,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
		now: time.Now,
	}
}

func (s *smtpService) SendEmail(ctx context.Context, email *Email) *Outcome {
	ts := uint64(s.now().Unix())

	if err := s.verify(ctx); err != nil {
		return failedOutcome(email, fmt.Errorf("%w: %v", ErrTransportUnavailable, err), ts)
	}

	var (
		messageID = fmt.Sprintf("<%s@%s>", uuid.NewString(), emailDomain(s.mailCfg.SenderEmail, s.cfg.Host))
		m         = s.newMessage(email, messageID)
	)

	sc, err := s.dialer.Dial()
	if err != nil {
		s.invalidate()
		log.Ctx(ctx).Warn().Msgf("dial smtp relay failed, to: %s, err: %v", email.To, err)
		return failedOutcome(email, err, ts)
	}
	defer func() {
		_ = sc.Close()
	}()

	if err := gomail.Send(sc, m); err != nil {
		log.Ctx(ctx).Warn().Msgf("send email failed, to: %s, err: %v", email.To, err)
		return failedOutcome(email, err, ts)
	}

	return &Outcome{
		Email:     email.To,
		Success:   true,
		MessageID: messageID,
		Timestamp: ts,
	}
}

func (s *smtpService) newMessage(email *Email, messageID string) *gomail.Message {
	m := gomail.NewMessage()

	m.SetAddressHeader("From", s.mailCfg.SenderEmail, s.mailCfg.SenderName)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetHeader("X-Campaign", email.GetCampaign())
	m.SetHeader("X-Template", email.GetTemplate())
	m.SetDateHeader("Date", s.now())

	switch {
	case email.TextContent != "" && email.HtmlContent != "":
		m.SetBody("text/plain", email.TextContent)
		m.AddAlternative("text/html", email.HtmlContent)
	case email.HtmlContent != "":
		m.SetBody("text/html", email.HtmlContent)
	default:
		m.SetBody("text/plain", email.TextContent)
	}

	return m
}

// verify dials the relay, retrying with backoff, and remembers success.
func (s *smtpService) verify(ctx context.Context) error {
	if s.isVerified() {
		return nil
	}

	_, err, _ := s.verifyGroup.Do("verify", func() (interface{}, error) {
		if s.isVerified() {
			return nil, nil
		}

		op := func() error {
			sc, err := s.dialer.Dial()
			if err != nil {
				return err
			}
			return sc.Close()
		}

		b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.cfg.VerifyRetries), ctx)
		if err := backoff.Retry(op, b); err != nil {
			log.Ctx(ctx).Error().Msgf("verify smtp relay failed, host: %s, err: %v", s.cfg.Host, err)
			return nil, err
		}

		s.mu.Lock()
		s.verified = true
		s.mu.Unlock()

		return nil, nil
	})

	return err
}

func (s *smtpService) isVerified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

func (s *smtpService) invalidate() {
	s.mu.Lock()
	s.verified = false
	s.mu.Unlock()
}

func (s *smtpService) TestConnection(_ context.Context) error {
	sc, err := s.dialer.Dial()
	if err != nil {
		s.invalidate()
		return err
	}
	return sc.Close()
}

func (s *smtpService) Close(_ context.Context) error {
	return nil
}
