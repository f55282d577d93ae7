package domain

import "time"

// QuotaPolicy — глобальная конфигурация порогов и шаблонов сообщений.
// Хранится одной строкой в базе; отсутствие строки означает значения по умолчанию.
// Политика читается как неизменяемый снимок перед каждой оценкой,
// поэтому изменения применяются без перезапуска сервиса.
type QuotaPolicy struct {
	SoftLimitPercent         float64   `json:"soft_limit_percent" db:"soft_limit_percent"`
	HardLimitPercent         float64   `json:"hard_limit_percent" db:"hard_limit_percent"`
	GracePeriodDays          int       `json:"grace_period_days" db:"grace_period_days"`
	PublishedResourcePercent float64   `json:"published_resource_percent" db:"published_resource_percent"`
	EnforceQuota             bool      `json:"enforce_quota" db:"enforce_quota"`
	WarningTemplate          string    `json:"warning_template" db:"warning_template"`
	GraceTemplate            string    `json:"grace_template" db:"grace_template"`
	EnforcementTemplate      string    `json:"enforcement_template" db:"enforcement_template"`
	InfoTemplate             string    `json:"info_template" db:"info_template"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}

// Пороговые значения по умолчанию
const (
	DefaultSoftLimitPercent         = 80
	DefaultHardLimitPercent         = 125
	DefaultGracePeriodDays          = 7
	DefaultPublishedResourcePercent = 100
)

// Шаблоны по умолчанию. Плейсхолдеры {used} {unit} {allocated} {zone}
// {percent} {cut_off_date} разбираются внешними потребителями, менять их нельзя.
const (
	DefaultWarningTemplate = "You have used {used} {unit} ({percent}%) of your " +
		"{allocated} {unit} quota in zone {zone}."
	DefaultGraceTemplate = "Zone {zone} is over quota: {used} {unit} of " +
		"{allocated} {unit} ({percent}%). Reduce usage or request more space " +
		"before {cut_off_date}, after that uploads will be disabled."
	DefaultEnforcementTemplate = "Zone {zone} quota exceeded: {used} {unit} of " +
		"{allocated} {unit} ({percent}%). Uploads are disabled."
	DefaultInfoTemplate = "Zone {zone}: {used} {unit} of {allocated} {unit} used ({percent}%)."
)

// DefaultQuotaPolicy возвращает политику со значениями по умолчанию
func DefaultQuotaPolicy() *QuotaPolicy {
	return &QuotaPolicy{
		SoftLimitPercent:         DefaultSoftLimitPercent,
		HardLimitPercent:         DefaultHardLimitPercent,
		GracePeriodDays:          DefaultGracePeriodDays,
		PublishedResourcePercent: DefaultPublishedResourcePercent,
		EnforceQuota:             true,
		WarningTemplate:          DefaultWarningTemplate,
		GraceTemplate:            DefaultGraceTemplate,
		EnforcementTemplate:      DefaultEnforcementTemplate,
		InfoTemplate:             DefaultInfoTemplate,
	}
}

// Template возвращает шаблон сообщения для статуса
func (p *QuotaPolicy) Template(status QuotaStatus) string {
	switch status {
	case StatusWarning:
		return p.WarningTemplate
	case StatusGrace:
		return p.GraceTemplate
	case StatusEnforced:
		return p.EnforcementTemplate
	default:
		return p.InfoTemplate
	}
}
