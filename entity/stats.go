package entity

type StatsOverview struct {
	TotalEmails     uint64 `json:"total_emails"`
	TotalRecipients uint64 `json:"total_recipients"`
	TotalSuccess    uint64 `json:"total_success"`
	TotalFailures   uint64 `json:"total_failures"`
	SuccessRate     string `json:"success_rate"`
}

type CampaignStats struct {
	Campaign        string `json:"campaign"`
	Count           uint64 `json:"count"`
	TotalRecipients uint64 `json:"total_recipients"`
	TotalSuccess    uint64 `json:"total_success"`
}

type TemplateStats struct {
	TemplateID      uint64 `json:"template_id"`
	TemplateName    string `json:"template_name,omitempty"`
	Count           uint64 `json:"count"`
	TotalRecipients uint64 `json:"total_recipients"`
	TotalSuccess    uint64 `json:"total_success"`
}

// DailyStats aggregates the logs created on one calendar day, Date being YYYY-MM-DD.
type DailyStats struct {
	Date            string `json:"date"`
	Count           uint64 `json:"count"`
	TotalRecipients uint64 `json:"total_recipients"`
	TotalSuccess    uint64 `json:"total_success"`
	TotalFailures   uint64 `json:"total_failures"`
	SuccessRate     string `json:"success_rate"`
}

type EmailStats struct {
	Period       string           `json:"period"`
	Overview     *StatsOverview   `json:"overview,omitempty"`
	TopCampaigns []*CampaignStats `json:"top_campaigns"`
	TopTemplates []*TemplateStats `json:"top_templates"`
	DailyStats   []*DailyStats    `json:"daily_stats"`
}
