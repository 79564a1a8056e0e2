package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	MailProviderSMTP  = "smtp"
	MailProviderBrevo = "brevo"
)

type Config struct {
	MetadataDB  MySQL       `json:"metadata_db"`
	Mail        Mail        `json:"mail"`
	SMTP        SMTP        `json:"smtp"`
	Brevo       Brevo       `json:"brevo"`
	Dispatch    Dispatch    `json:"dispatch"`
	WebPages    WebPages    `json:"web_pages"`
	Footer      Footer      `json:"footer"`
	Unsubscribe Unsubscribe `json:"unsubscribe"`
	Redis       Redis       `json:"redis"`
	Tracking    Tracking    `json:"tracking"`
	Cors        Cors        `json:"cors"`
}

type Mail struct {
	Provider    string `json:"provider"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
}

type SMTP struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Secure        bool   `json:"secure"` // implicit TLS, e.g. port 465
	Username      string `json:"username"`
	Password      string `json:"password"`
	VerifyRetries uint64 `json:"verify_retries"`
}

type Brevo struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type Dispatch struct {
	BatchSize         int   `json:"batch_size"`
	BatchDelayMillis  int64 `json:"batch_delay_millis"`
	ResendLockSeconds int64 `json:"resend_lock_seconds"`
}

func (d Dispatch) BatchDelay() time.Duration {
	return time.Duration(d.BatchDelayMillis) * time.Millisecond
}

func (d Dispatch) ResendLockTTL() time.Duration {
	return time.Duration(d.ResendLockSeconds) * time.Second
}

type WebPages struct {
	FrontendURL string `json:"frontend_url"`
}

type Footer struct {
	OrgName    string `json:"org_name"`
	OrgAddress string `json:"org_address"`
}

type Unsubscribe struct {
	Secret     string `json:"secret"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (u Unsubscribe) TTL() time.Duration {
	return time.Duration(u.TTLSeconds) * time.Second
}

type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Tracking struct {
	Brokers       []string `json:"brokers"`
	Topic         string   `json:"topic"`
	ConsumerGroup string   `json:"consumer_group"`
}

func (t Tracking) Enabled() bool {
	return len(t.Brokers) > 0 && t.Topic != ""
}

type Cors struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type MySQL struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
}

func (mysql *MySQL) ToDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", mysql.Username, mysql.Password, mysql.Host, mysql.Port, mysql.Database)
}

func NewConfig() *Config {
	return &Config{
		MetadataDB: MySQL{
			Username: "",
			Password: "",
			Host:     "127.0.0.1",
			Port:     3306,
			Database: "outreach_db",
		},
		Mail: Mail{
			Provider:    MailProviderSMTP,
			SenderName:  "E-Cell KCCOE",
			SenderEmail: "",
		},
		SMTP: SMTP{
			Host:          "smtp.gmail.com",
			Port:          587,
			Secure:        false,
			VerifyRetries: 2,
		},
		Brevo: Brevo{
			BaseURL: "https://api.brevo.com/v3",
		},
		Dispatch: Dispatch{
			BatchSize:         10,
			BatchDelayMillis:  1000,
			ResendLockSeconds: 600,
		},
		WebPages: WebPages{
			FrontendURL: "http://localhost:3000",
		},
		Footer: Footer{
			OrgName:    "E-Cell, K.C. College of Engineering",
			OrgAddress: "E-Cell KCCOE, Thane, Maharashtra, India",
		},
		Unsubscribe: Unsubscribe{
			TTLSeconds: 7_776_000, // 90 days
		},
		Tracking: Tracking{
			ConsumerGroup: "outreach-tracking",
		},
		Cors: Cors{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func (c *Config) Load(ctx context.Context, path string) error {
	if path == "" {
		log.Ctx(ctx).Warn().Msgf("empty config file")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Ctx(ctx).Warn().Msgf("config file does not exist, file path: %s", path)
			return nil
		}
		return err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
			log.Ctx(ctx).Error().Msgf("config file close failed, file path: %s", path)
		}
	}(f)

	p := json.NewDecoder(f)
	if err := p.Decode(&c); err != nil {
		return err
	}

	return c.validate()
}

func (c *Config) validate() error {
	switch c.Mail.Provider {
	case MailProviderSMTP, MailProviderBrevo:
	default:
		return fmt.Errorf("unsupported mail provider: %q", c.Mail.Provider)
	}

	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch batch size must be positive, got %d", c.Dispatch.BatchSize)
	}

	if c.Dispatch.BatchDelayMillis < 0 {
		return fmt.Errorf("dispatch batch delay must not be negative, got %d", c.Dispatch.BatchDelayMillis)
	}

	return nil
}
