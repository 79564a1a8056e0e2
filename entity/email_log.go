package entity

type RecipientStatus uint32

const (
	RecipientStatusUnknown RecipientStatus = iota
	RecipientStatusSent
	RecipientStatusFailed
	RecipientStatusBounced
	RecipientStatusDelivered
	RecipientStatusOpened
	RecipientStatusClicked
)

var RecipientStatuses = map[string]RecipientStatus{
	"sent":      RecipientStatusSent,
	"failed":    RecipientStatusFailed,
	"bounced":   RecipientStatusBounced,
	"delivered": RecipientStatusDelivered,
	"opened":    RecipientStatusOpened,
	"clicked":   RecipientStatusClicked,
}

// IsSuccess reports whether the status counts towards a log's success count.
func (s RecipientStatus) IsSuccess() bool {
	switch s {
	case RecipientStatusSent, RecipientStatusDelivered, RecipientStatusOpened, RecipientStatusClicked:
		return true
	}
	return false
}

type Recipient struct {
	ID           *uint64         `json:"id,omitempty"`
	EmailLogID   *uint64         `json:"email_log_id,omitempty"`
	Email        *string         `json:"email,omitempty"`
	ContactID    *uint64         `json:"contact_id,omitempty"`
	Status       RecipientStatus `json:"status,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	SentAt       *uint64         `json:"sent_at,omitempty"`
	DeliveredAt  *uint64         `json:"delivered_at,omitempty"`
	OpenedAt     *uint64         `json:"opened_at,omitempty"`
	ClickedAt    *uint64         `json:"clicked_at,omitempty"`
}

func (e *Recipient) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Recipient) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Recipient) GetContactID() uint64 {
	if e != nil && e.ContactID != nil {
		return *e.ContactID
	}
	return 0
}

func (e *Recipient) GetStatus() RecipientStatus {
	if e != nil {
		return e.Status
	}
	return RecipientStatusUnknown
}

func (e *Recipient) GetErrorMessage() string {
	if e != nil && e.ErrorMessage != nil {
		return *e.ErrorMessage
	}
	return ""
}

func (e *Recipient) GetSentAt() uint64 {
	if e != nil && e.SentAt != nil {
		return *e.SentAt
	}
	return 0
}

// EmailLog is the persisted record of one send operation: single, bulk or the resend of either.
type EmailLog struct {
	ID              *uint64           `json:"id,omitempty"`
	Recipients      []*Recipient      `json:"recipients,omitempty"`
	Subject         *string           `json:"subject,omitempty"`
	HtmlContent     *string           `json:"html_content,omitempty"`
	TextContent     *string           `json:"text_content,omitempty"`
	TemplateID      *uint64           `json:"template_id,omitempty"`
	TemplateData    map[string]string `json:"template_data,omitempty"`
	SenderID        *uint64           `json:"sender_id,omitempty"`
	Campaign        *string           `json:"campaign,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	TotalRecipients *uint64           `json:"total_recipients,omitempty"`
	SuccessCount    *uint64           `json:"success_count,omitempty"`
	FailureCount    *uint64           `json:"failure_count,omitempty"`
	OpenRate        *float64          `json:"open_rate,omitempty"`
	ClickRate       *float64          `json:"click_rate,omitempty"`
	Version         *uint64           `json:"version,omitempty"`
	CreateTime      *uint64           `json:"create_time,omitempty"`
	UpdateTime      *uint64           `json:"update_time,omitempty"`
}

func (e *EmailLog) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *EmailLog) GetSubject() string {
	if e != nil && e.Subject != nil {
		return *e.Subject
	}
	return ""
}

func (e *EmailLog) GetHtmlContent() string {
	if e != nil && e.HtmlContent != nil {
		return *e.HtmlContent
	}
	return ""
}

func (e *EmailLog) GetTextContent() string {
	if e != nil && e.TextContent != nil {
		return *e.TextContent
	}
	return ""
}

func (e *EmailLog) GetTemplateID() uint64 {
	if e != nil && e.TemplateID != nil {
		return *e.TemplateID
	}
	return 0
}

func (e *EmailLog) GetTemplateData() map[string]string {
	if e != nil && e.TemplateData != nil {
		return e.TemplateData
	}
	return nil
}

func (e *EmailLog) GetSenderID() uint64 {
	if e != nil && e.SenderID != nil {
		return *e.SenderID
	}
	return 0
}

func (e *EmailLog) GetCampaign() string {
	if e != nil && e.Campaign != nil {
		return *e.Campaign
	}
	return ""
}

func (e *EmailLog) GetTotalRecipients() uint64 {
	if e != nil && e.TotalRecipients != nil {
		return *e.TotalRecipients
	}
	return 0
}

func (e *EmailLog) GetSuccessCount() uint64 {
	if e != nil && e.SuccessCount != nil {
		return *e.SuccessCount
	}
	return 0
}

func (e *EmailLog) GetFailureCount() uint64 {
	if e != nil && e.FailureCount != nil {
		return *e.FailureCount
	}
	return 0
}

func (e *EmailLog) GetVersion() uint64 {
	if e != nil && e.Version != nil {
		return *e.Version
	}
	return 0
}

func (e *EmailLog) GetCreateTime() uint64 {
	if e != nil && e.CreateTime != nil {
		return *e.CreateTime
	}
	return 0
}

// FailedRecipients returns the recipient entries currently in the failed state, in log order.
func (e *EmailLog) FailedRecipients() []*Recipient {
	failed := make([]*Recipient, 0)
	if e == nil {
		return failed
	}
	for _, r := range e.Recipients {
		if r.GetStatus() == RecipientStatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RecomputeStats derives the success/failure counts and engagement rates from the recipients.
func (e *EmailLog) RecomputeStats() {
	var success, opened, clicked uint64
	for _, r := range e.Recipients {
		if r.GetStatus().IsSuccess() {
			success++
		}
		if r.OpenedAt != nil {
			opened++
		}
		if r.ClickedAt != nil {
			clicked++
		}
	}

	total := uint64(len(e.Recipients))
	failure := total - success

	var openRate, clickRate float64
	if success > 0 {
		openRate = float64(opened) / float64(success)
		clickRate = float64(clicked) / float64(success)
	}

	e.TotalRecipients = &total
	e.SuccessCount = &success
	e.FailureCount = &failure
	e.OpenRate = &openRate
	e.ClickRate = &clickRate
}

type EmailLogFilter struct {
	Campaign   *string
	TemplateID *uint64
	Status     *RecipientStatus
	StartTime  *uint64
	EndTime    *uint64
}
