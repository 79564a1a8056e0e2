package config

const (
	PathHealthCheck        = "/"
	PathLogIn              = "/log_in"
	PathLogOut             = "/log_out"
	PathSendEmail          = "/send_email"
	PathSendBulkEmails     = "/send_bulk_emails"
	PathResendFailedEmails = "/resend_failed_emails"
	PathTestEmailConn      = "/test_email_connection"
	PathGetEmailLogs       = "/get_email_logs"
	PathGetEmailLog        = "/get_email_log"
	PathGetEmailStats      = "/get_email_stats"
	PathCreateTemplate     = "/create_template"
	PathGetTemplate        = "/get_template"
	PathGetTemplates       = "/get_templates"
	PathPreviewTemplate    = "/preview_template"
	PathCreateContact      = "/create_contact"
	PathUnsubscribe        = "/unsubscribe"
	PathOnEmailEvent       = "/on_email_event"
)

const (
	DefaultPort   = 9090
	LogLevelDebug = "DEBUG"
)
