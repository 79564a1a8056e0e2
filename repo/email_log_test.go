package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
)

var (
	emailLogColumns = []string{
		"id", "subject", "html_content", "text_content", "template_id", "template_data", "sender_id", "campaign",
		"tags", "total_recipients", "success_count", "failure_count", "open_rate", "click_rate", "version",
		"create_time", "update_time",
	}
	recipientColumns = []string{
		"id", "email_log_id", "email", "contact_id", "status", "error_message", "sent_at", "delivered_at",
		"opened_at", "clicked_at",
	}
)

func TestEmailLogRepo_GetByID(t *testing.T) {
	t.Parallel()

	baseRepo, mock := newMockBaseRepo(t)
	emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

	mock.ExpectQuery("SELECT \\* FROM `email_log_tab` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(emailLogColumns).
			AddRow(7, "Hi", "<p>Hi {{firstName}}</p>", "Hi", 3, `{"firstName":"there"}`, 1, "launch",
				`["ecell"]`, 3, 2, 1, 0, 0, 4, 1700000000, 1700000000))
	mock.ExpectQuery("SELECT \\* FROM `email_log_recipient_tab` WHERE email_log_id = \\?").
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow(1, 7, "a@x.io", nil, uint32(entity.RecipientStatusSent), nil, 1700000000, nil, nil, nil).
			AddRow(2, 7, "b@x.io", 9, uint32(entity.RecipientStatusFailed), "invalid recipient", nil, nil, nil, nil).
			AddRow(3, 7, "c@x.io", nil, uint32(entity.RecipientStatusSent), nil, 1700000000, nil, nil, nil))

	emailLog, err := emailLogRepo.GetByID(context.Background(), 7)
	require.NoError(t, err)

	require.Equal(t, uint64(7), emailLog.GetID())
	require.Equal(t, "launch", emailLog.GetCampaign())
	require.Equal(t, map[string]string{"firstName": "there"}, emailLog.GetTemplateData())
	require.Equal(t, []string{"ecell"}, emailLog.Tags)
	require.Equal(t, uint64(4), emailLog.GetVersion())
	require.Len(t, emailLog.Recipients, 3)

	failed := emailLog.FailedRecipients()
	require.Len(t, failed, 1)
	require.Equal(t, "b@x.io", failed[0].GetEmail())
	require.Equal(t, uint64(9), failed[0].GetContactID())
	require.Equal(t, "invalid recipient", failed[0].GetErrorMessage())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailLogRepo_GetByIDNotFound(t *testing.T) {
	t.Parallel()

	baseRepo, mock := newMockBaseRepo(t)
	emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

	mock.ExpectQuery("SELECT \\* FROM `email_log_tab` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(emailLogColumns))

	_, err := emailLogRepo.GetByID(context.Background(), 404)
	require.ErrorIs(t, err, ErrEmailLogNotFound)
	require.True(t, errutil.Is(err, 404))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailLogRepo_Create(t *testing.T) {
	t.Parallel()

	baseRepo, mock := newMockBaseRepo(t)
	emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `email_log_tab`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO `email_log_recipient_tab`").
		WillReturnResult(sqlmock.NewResult(20, 2))
	mock.ExpectCommit()

	emailLog := &entity.EmailLog{
		Subject:      goutil.String("Hi"),
		TemplateData: map[string]string{"firstName": "there"},
		Campaign:     goutil.String("launch"),
		Recipients: []*entity.Recipient{
			{Email: goutil.String("a@x.io"), Status: entity.RecipientStatusSent},
			{Email: goutil.String("b@x.io"), Status: entity.RecipientStatusFailed},
		},
	}
	emailLog.RecomputeStats()

	id, err := emailLogRepo.Create(context.Background(), emailLog)
	require.NoError(t, err)
	require.Equal(t, uint64(11), id)
	require.Equal(t, uint64(11), emailLog.GetID())
	require.Equal(t, uint64(1), emailLog.GetVersion())
	for _, r := range emailLog.Recipients {
		require.Equal(t, uint64(11), *r.EmailLogID)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailLogRepo_SaveRecipients(t *testing.T) {
	t.Parallel()

	newLog := func() *entity.EmailLog {
		emailLog := &entity.EmailLog{
			ID:      goutil.Uint64(7),
			Version: goutil.Uint64(2),
			Recipients: []*entity.Recipient{
				{ID: goutil.Uint64(1), Status: entity.RecipientStatusSent},
				{ID: goutil.Uint64(2), Status: entity.RecipientStatusSent},
			},
		}
		emailLog.RecomputeStats()
		return emailLog
	}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		baseRepo, mock := newMockBaseRepo(t)
		emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `email_log_tab` SET .* WHERE id = \\? AND version = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE `email_log_recipient_tab` SET .* WHERE id = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		emailLog := newLog()
		require.NoError(t, emailLogRepo.SaveRecipients(context.Background(), emailLog, emailLog.Recipients[1:]))
		require.Equal(t, uint64(3), emailLog.GetVersion())

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version conflict", func(t *testing.T) {
		t.Parallel()

		baseRepo, mock := newMockBaseRepo(t)
		emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `email_log_tab` SET .* WHERE id = \\? AND version = \\?").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		emailLog := newLog()
		err := emailLogRepo.SaveRecipients(context.Background(), emailLog, emailLog.Recipients[1:])
		require.ErrorIs(t, err, ErrEmailLogVersionConflict)
		require.True(t, errutil.Is(err, 409))
		require.Equal(t, uint64(2), emailLog.GetVersion())

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEmailLogRepo_GetStats(t *testing.T) {
	t.Parallel()

	baseRepo, mock := newMockBaseRepo(t)
	emailLogRepo := NewEmailLogRepo(context.Background(), baseRepo)

	mock.ExpectQuery("SELECT .*COUNT\\(\\*\\) AS total_emails.* FROM `email_log_tab` WHERE create_time >= \\?").
		WillReturnRows(sqlmock.NewRows([]string{"total_emails", "total_failures", "total_recipients", "total_success"}).
			AddRow(4, 2, 9, 7))
	mock.ExpectQuery("SELECT campaign, .* FROM `email_log_tab` WHERE create_time >= \\? GROUP BY .?campaign.? ORDER BY count DESC LIMIT 10").
		WillReturnRows(sqlmock.NewRows([]string{"campaign", "count", "total_recipients", "total_success"}).
			AddRow("launch", 3, 6, 5))
	mock.ExpectQuery("SELECT template_id, .*SUM\\(total_recipients\\).* FROM `email_log_tab` WHERE .*template_id > \\? GROUP BY .?template_id.? ORDER BY count DESC LIMIT 10").
		WillReturnRows(sqlmock.NewRows([]string{"template_id", "count", "total_recipients", "total_success"}).
			AddRow(3, 2, 5, 4))
	mock.ExpectQuery("SELECT FROM_UNIXTIME\\(create_time, '%Y-%m-%d'\\) AS date, .* FROM `email_log_tab` WHERE create_time >= \\? GROUP BY .?date.? ORDER BY date ASC$").
		WillReturnRows(sqlmock.NewRows([]string{"date", "count", "total_failures", "total_recipients", "total_success"}).
			AddRow("2023-11-14", 1, 1, 3, 2).
			AddRow("2023-11-15", 3, 1, 6, 5))

	stats, err := emailLogRepo.GetStats(context.Background(), 1700000000)
	require.NoError(t, err)

	require.Equal(t, uint64(4), stats.Overview.TotalEmails)
	require.Equal(t, "77.78%", stats.Overview.SuccessRate)

	require.Len(t, stats.TopCampaigns, 1)
	require.Equal(t, "launch", stats.TopCampaigns[0].Campaign)

	require.Len(t, stats.TopTemplates, 1)
	require.Equal(t, uint64(3), stats.TopTemplates[0].TemplateID)
	require.Equal(t, uint64(5), stats.TopTemplates[0].TotalRecipients)
	require.Equal(t, uint64(4), stats.TopTemplates[0].TotalSuccess)

	require.Len(t, stats.DailyStats, 2)
	require.Equal(t, &entity.DailyStats{
		Date:            "2023-11-14",
		Count:           1,
		TotalRecipients: 3,
		TotalSuccess:    2,
		TotalFailures:   1,
		SuccessRate:     "66.67%",
	}, stats.DailyStats[0])
	require.Equal(t, "2023-11-15", stats.DailyStats[1].Date)
	require.Equal(t, "83.33%", stats.DailyStats[1].SuccessRate)

	require.NoError(t, mock.ExpectationsWereMet())
}
