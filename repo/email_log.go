package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
)

var (
	ErrEmailLogNotFound        = errutil.NotFoundError(errors.New("email log not found"))
	ErrEmailLogVersionConflict = errutil.ConflictError(errors.New("email log was modified concurrently, please retry"))
)

const topStatsLimit = 10

type EmailLog struct {
	ID              *uint64 `gorm:"primaryKey"`
	Subject         *string
	HtmlContent     *string
	TextContent     *string
	TemplateID      *uint64
	TemplateData    *string
	SenderID        *uint64
	Campaign        *string
	Tags            *string
	TotalRecipients *uint64
	SuccessCount    *uint64
	FailureCount    *uint64
	OpenRate        *float64
	ClickRate       *float64
	Version         *uint64
	CreateTime      *uint64
	UpdateTime      *uint64
}

func (m *EmailLog) TableName() string {
	return "email_log_tab"
}

func (m *EmailLog) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *EmailLog) GetTemplateData() string {
	if m != nil && m.TemplateData != nil {
		return *m.TemplateData
	}
	return ""
}

func (m *EmailLog) GetTags() string {
	if m != nil && m.Tags != nil {
		return *m.Tags
	}
	return ""
}

type EmailLogRecipient struct {
	ID           *uint64 `gorm:"primaryKey"`
	EmailLogID   *uint64
	Email        *string
	ContactID    *uint64
	Status       *uint32
	ErrorMessage *string
	SentAt       *uint64
	DeliveredAt  *uint64
	OpenedAt     *uint64
	ClickedAt    *uint64
}

func (m *EmailLogRecipient) TableName() string {
	return "email_log_recipient_tab"
}

func (m *EmailLogRecipient) GetStatus() uint32 {
	if m != nil && m.Status != nil {
		return *m.Status
	}
	return 0
}

func (m *EmailLogRecipient) GetEmailLogID() uint64 {
	if m != nil && m.EmailLogID != nil {
		return *m.EmailLogID
	}
	return 0
}

type EmailLogRepo interface {
	Create(ctx context.Context, emailLog *entity.EmailLog) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.EmailLog, error)
	GetMany(ctx context.Context, f *entity.EmailLogFilter, pagination *Pagination) ([]*entity.EmailLog, *Pagination, error)
	// SaveRecipients persists the log's counters and the given recipients if the stored
	// version still equals emailLog.Version, bumping the version on success.
	SaveRecipients(ctx context.Context, emailLog *entity.EmailLog, recipients []*entity.Recipient) error
	GetStats(ctx context.Context, since uint64) (*entity.EmailStats, error)
}

type emailLogRepo struct {
	baseRepo BaseRepo
}

func NewEmailLogRepo(_ context.Context, baseRepo BaseRepo) EmailLogRepo {
	return &emailLogRepo{baseRepo: baseRepo}
}

func (r *emailLogRepo) Create(ctx context.Context, emailLog *entity.EmailLog) (uint64, error) {
	emailLogModel, err := ToEmailLogModel(emailLog)
	if err != nil {
		return 0, err
	}
	if emailLogModel.Version == nil {
		emailLogModel.Version = goutil.Uint64(1)
	}

	if err := r.baseRepo.RunTx(ctx, func(ctx context.Context) error {
		if err := r.baseRepo.Create(ctx, emailLogModel); err != nil {
			return err
		}

		if len(emailLog.Recipients) == 0 {
			return nil
		}

		recipientModels := make([]*EmailLogRecipient, len(emailLog.Recipients))
		for i, recipient := range emailLog.Recipients {
			recipientModels[i] = ToEmailLogRecipientModel(recipient)
			recipientModels[i].EmailLogID = emailLogModel.ID
		}

		if err := r.baseRepo.CreateMany(ctx, new(EmailLogRecipient), &recipientModels); err != nil {
			return err
		}

		for i, recipient := range emailLog.Recipients {
			recipient.ID = recipientModels[i].ID
			recipient.EmailLogID = emailLogModel.ID
		}

		return nil
	}); err != nil {
		return 0, err
	}

	emailLog.ID = emailLogModel.ID
	emailLog.Version = emailLogModel.Version

	return emailLogModel.GetID(), nil
}

func (r *emailLogRepo) GetByID(ctx context.Context, id uint64) (*entity.EmailLog, error) {
	emailLogModel := new(EmailLog)

	if err := r.baseRepo.Get(ctx, emailLogModel, &Filter{
		Conditions: []*Condition{
			{
				Field: "id",
				Value: id,
				Op:    OpEq,
			},
		},
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmailLogNotFound
		}
		return nil, err
	}

	recipientModels := make([]*EmailLogRecipient, 0)
	if err := r.baseRepo.Find(ctx, &recipientModels, &Filter{
		Conditions: []*Condition{
			{
				Field: "email_log_id",
				Value: id,
				Op:    OpEq,
			},
		},
	}); err != nil {
		return nil, err
	}

	emailLog, err := ToEmailLog(emailLogModel)
	if err != nil {
		return nil, err
	}

	emailLog.Recipients = make([]*entity.Recipient, len(recipientModels))
	for i, recipientModel := range recipientModels {
		emailLog.Recipients[i] = ToRecipient(recipientModel)
	}

	return emailLog, nil
}

func (r *emailLogRepo) GetMany(ctx context.Context, f *entity.EmailLogFilter, pagination *Pagination) ([]*entity.EmailLog, *Pagination, error) {
	if f == nil {
		f = new(entity.EmailLogFilter)
	}

	conditions := []*Condition{
		{
			Field: "campaign",
			Value: f.Campaign,
			Op:    OpEq,
		},
		{
			Field: "template_id",
			Value: f.TemplateID,
			Op:    OpEq,
		},
		{
			Field: "create_time",
			Value: f.StartTime,
			Op:    OpGte,
		},
		{
			Field: "create_time",
			Value: f.EndTime,
			Op:    OpLte,
		},
	}

	if f.Status != nil {
		ids, err := r.getLogIDsByRecipientStatus(ctx, *f.Status)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) == 0 {
			return []*entity.EmailLog{}, &Pagination{
				Page:    goutil.Uint32(pagination.GetPage()),
				Limit:   goutil.Uint32(pagination.GetLimit()),
				HasNext: goutil.Bool(false),
				Total:   goutil.Uint32(0),
			}, nil
		}
		conditions = append(conditions, &Condition{
			Field: "id",
			Value: ids,
			Op:    OpIn,
		})
	}

	res, paging, err := r.baseRepo.GetMany(ctx, new(EmailLog), &Filter{
		Conditions: conditions,
		Pagination: pagination,
	})
	if err != nil {
		return nil, nil, err
	}

	emailLogs := make([]*entity.EmailLog, len(res))
	for i, m := range res {
		emailLog, err := ToEmailLog(m.(*EmailLog))
		if err != nil {
			return nil, nil, err
		}
		emailLogs[i] = emailLog
	}

	return emailLogs, paging, nil
}

func (r *emailLogRepo) getLogIDsByRecipientStatus(ctx context.Context, status entity.RecipientStatus) ([]uint64, error) {
	recipientModels := make([]*EmailLogRecipient, 0)
	if err := r.baseRepo.Find(ctx, &recipientModels, &Filter{
		Conditions: []*Condition{
			{
				Field: "status",
				Value: uint32(status),
				Op:    OpEq,
			},
		},
	}); err != nil {
		return nil, err
	}

	var (
		seen = make(map[uint64]struct{})
		ids  = make([]uint64, 0)
	)
	for _, m := range recipientModels {
		if _, ok := seen[m.GetEmailLogID()]; ok {
			continue
		}
		seen[m.GetEmailLogID()] = struct{}{}
		ids = append(ids, m.GetEmailLogID())
	}

	return ids, nil
}

func (r *emailLogRepo) SaveRecipients(ctx context.Context, emailLog *entity.EmailLog, recipients []*entity.Recipient) error {
	var (
		version = emailLog.GetVersion()
		now     = uint64(time.Now().Unix())
	)

	if err := r.baseRepo.RunTx(ctx, func(ctx context.Context) error {
		affected, err := r.baseRepo.UpdateSelected(ctx, new(EmailLog), &Filter{
			Conditions: []*Condition{
				{
					Field: "id",
					Value: emailLog.GetID(),
					Op:    OpEq,
				},
				{
					Field: "version",
					Value: version,
					Op:    OpEq,
				},
			},
		}, map[string]interface{}{
			"total_recipients": emailLog.GetTotalRecipients(),
			"success_count":    emailLog.GetSuccessCount(),
			"failure_count":    emailLog.GetFailureCount(),
			"open_rate":        emailLog.OpenRate,
			"click_rate":       emailLog.ClickRate,
			"version":          version + 1,
			"update_time":      now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrEmailLogVersionConflict
		}

		for _, recipient := range recipients {
			if _, err := r.baseRepo.UpdateSelected(ctx, new(EmailLogRecipient), &Filter{
				Conditions: []*Condition{
					{
						Field: "id",
						Value: recipient.GetID(),
						Op:    OpEq,
					},
				},
			}, map[string]interface{}{
				"status":        uint32(recipient.GetStatus()),
				"error_message": recipient.ErrorMessage,
				"sent_at":       recipient.SentAt,
				"delivered_at":  recipient.DeliveredAt,
				"opened_at":     recipient.OpenedAt,
				"clicked_at":    recipient.ClickedAt,
			}); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return err
	}

	emailLog.Version = goutil.Uint64(version + 1)
	emailLog.UpdateTime = goutil.Uint64(now)

	return nil
}

type overviewRow struct {
	TotalEmails     uint64
	TotalRecipients uint64
	TotalSuccess    uint64
	TotalFailures   uint64
}

type campaignRow struct {
	Campaign        string
	Count           uint64
	TotalRecipients uint64
	TotalSuccess    uint64
}

type templateRow struct {
	TemplateID      uint64
	Count           uint64
	TotalRecipients uint64
	TotalSuccess    uint64
}

type dailyRow struct {
	Date            string
	Count           uint64
	TotalRecipients uint64
	TotalSuccess    uint64
	TotalFailures   uint64
}

func (r *emailLogRepo) GetStats(ctx context.Context, since uint64) (*entity.EmailStats, error) {
	sinceCondition := &Condition{
		Field: "create_time",
		Value: since,
		Op:    OpGte,
	}

	overviewRows := make([]*overviewRow, 0)
	if err := r.baseRepo.GroupBy(ctx, new(EmailLog), &overviewRows, nil, map[string]string{
		"total_emails":     "COUNT(*)",
		"total_recipients": "COALESCE(SUM(total_recipients), 0)",
		"total_success":    "COALESCE(SUM(success_count), 0)",
		"total_failures":   "COALESCE(SUM(failure_count), 0)",
	}, &Filter{
		Conditions: []*Condition{sinceCondition},
	}, "", 0); err != nil {
		return nil, err
	}

	overview := new(entity.StatsOverview)
	if len(overviewRows) > 0 {
		row := overviewRows[0]
		overview.TotalEmails = row.TotalEmails
		overview.TotalRecipients = row.TotalRecipients
		overview.TotalSuccess = row.TotalSuccess
		overview.TotalFailures = row.TotalFailures
	}
	overview.SuccessRate = goutil.Percent(overview.TotalSuccess, overview.TotalRecipients)

	campaignRows := make([]*campaignRow, 0)
	if err := r.baseRepo.GroupBy(ctx, new(EmailLog), &campaignRows, []string{"campaign"}, map[string]string{
		"count":            "COUNT(*)",
		"total_recipients": "COALESCE(SUM(total_recipients), 0)",
		"total_success":    "COALESCE(SUM(success_count), 0)",
	}, &Filter{
		Conditions: []*Condition{sinceCondition},
	}, "count DESC", topStatsLimit); err != nil {
		return nil, err
	}

	templateRows := make([]*templateRow, 0)
	if err := r.baseRepo.GroupBy(ctx, new(EmailLog), &templateRows, []string{"template_id"}, map[string]string{
		"count":            "COUNT(*)",
		"total_recipients": "COALESCE(SUM(total_recipients), 0)",
		"total_success":    "COALESCE(SUM(success_count), 0)",
	}, &Filter{
		Conditions: []*Condition{
			sinceCondition,
			{
				Field: "template_id",
				Value: 0,
				Op:    OpGt,
			},
		},
	}, "count DESC", topStatsLimit); err != nil {
		return nil, err
	}

	dailyRows := make([]*dailyRow, 0)
	if err := r.baseRepo.GroupBy(ctx, new(EmailLog), &dailyRows, []string{
		"FROM_UNIXTIME(create_time, '%Y-%m-%d') AS date",
	}, map[string]string{
		"count":            "COUNT(*)",
		"total_recipients": "COALESCE(SUM(total_recipients), 0)",
		"total_success":    "COALESCE(SUM(success_count), 0)",
		"total_failures":   "COALESCE(SUM(failure_count), 0)",
	}, &Filter{
		Conditions: []*Condition{sinceCondition},
	}, "date ASC", 0); err != nil {
		return nil, err
	}

	stats := &entity.EmailStats{
		Overview:     overview,
		TopCampaigns: make([]*entity.CampaignStats, len(campaignRows)),
		TopTemplates: make([]*entity.TemplateStats, len(templateRows)),
		DailyStats:   make([]*entity.DailyStats, len(dailyRows)),
	}
	for i, row := range campaignRows {
		stats.TopCampaigns[i] = &entity.CampaignStats{
			Campaign:        row.Campaign,
			Count:           row.Count,
			TotalRecipients: row.TotalRecipients,
			TotalSuccess:    row.TotalSuccess,
		}
	}
	for i, row := range templateRows {
		stats.TopTemplates[i] = &entity.TemplateStats{
			TemplateID:      row.TemplateID,
			Count:           row.Count,
			TotalRecipients: row.TotalRecipients,
			TotalSuccess:    row.TotalSuccess,
		}
	}
	for i, row := range dailyRows {
		stats.DailyStats[i] = &entity.DailyStats{
			Date:            row.Date,
			Count:           row.Count,
			TotalRecipients: row.TotalRecipients,
			TotalSuccess:    row.TotalSuccess,
			TotalFailures:   row.TotalFailures,
			SuccessRate:     goutil.Percent(row.TotalSuccess, row.TotalRecipients),
		}
	}

	return stats, nil
}

func ToEmailLog(m *EmailLog) (*entity.EmailLog, error) {
	var templateData map[string]string
	if m.GetTemplateData() != "" {
		if err := json.Unmarshal([]byte(m.GetTemplateData()), &templateData); err != nil {
			return nil, err
		}
	}

	var tags []string
	if m.GetTags() != "" {
		if err := json.Unmarshal([]byte(m.GetTags()), &tags); err != nil {
			return nil, err
		}
	}

	return &entity.EmailLog{
		ID:              m.ID,
		Subject:         m.Subject,
		HtmlContent:     m.HtmlContent,
		TextContent:     m.TextContent,
		TemplateID:      m.TemplateID,
		TemplateData:    templateData,
		SenderID:        m.SenderID,
		Campaign:        m.Campaign,
		Tags:            tags,
		TotalRecipients: m.TotalRecipients,
		SuccessCount:    m.SuccessCount,
		FailureCount:    m.FailureCount,
		OpenRate:        m.OpenRate,
		ClickRate:       m.ClickRate,
		Version:         m.Version,
		CreateTime:      m.CreateTime,
		UpdateTime:      m.UpdateTime,
	}, nil
}

func ToEmailLogModel(e *entity.EmailLog) (*EmailLog, error) {
	var templateData, tags *string

	if e.TemplateData != nil {
		b, err := json.Marshal(e.TemplateData)
		if err != nil {
			return nil, err
		}
		templateData = goutil.String(string(b))
	}

	if e.Tags != nil {
		b, err := json.Marshal(e.Tags)
		if err != nil {
			return nil, err
		}
		tags = goutil.String(string(b))
	}

	return &EmailLog{
		ID:              e.ID,
		Subject:         e.Subject,
		HtmlContent:     e.HtmlContent,
		TextContent:     e.TextContent,
		TemplateID:      e.TemplateID,
		TemplateData:    templateData,
		SenderID:        e.SenderID,
		Campaign:        e.Campaign,
		Tags:            tags,
		TotalRecipients: e.TotalRecipients,
		SuccessCount:    e.SuccessCount,
		FailureCount:    e.FailureCount,
		OpenRate:        e.OpenRate,
		ClickRate:       e.ClickRate,
		Version:         e.Version,
		CreateTime:      e.CreateTime,
		UpdateTime:      e.UpdateTime,
	}, nil
}

func ToRecipient(m *EmailLogRecipient) *entity.Recipient {
	return &entity.Recipient{
		ID:           m.ID,
		EmailLogID:   m.EmailLogID,
		Email:        m.Email,
		ContactID:    m.ContactID,
		Status:       entity.RecipientStatus(m.GetStatus()),
		ErrorMessage: m.ErrorMessage,
		SentAt:       m.SentAt,
		DeliveredAt:  m.DeliveredAt,
		OpenedAt:     m.OpenedAt,
		ClickedAt:    m.ClickedAt,
	}
}

func ToEmailLogRecipientModel(e *entity.Recipient) *EmailLogRecipient {
	return &EmailLogRecipient{
		ID:           e.ID,
		EmailLogID:   e.EmailLogID,
		Email:        e.Email,
		ContactID:    e.ContactID,
		Status:       goutil.Uint32(uint32(e.Status)),
		ErrorMessage: e.ErrorMessage,
		SentAt:       e.SentAt,
		DeliveredAt:  e.DeliveredAt,
		OpenedAt:     e.OpenedAt,
		ClickedAt:    e.ClickedAt,
	}
}
