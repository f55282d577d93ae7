package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"synxronquota/internal/domain"
)

type QuotaPolicyRepository struct {
	db *sqlx.DB
}

func NewQuotaPolicyRepository(db *sqlx.DB) *QuotaPolicyRepository {
	return &QuotaPolicyRepository{db: db}
}

// Get возвращает снимок глобальной политики. Если строка удалена,
// действуют значения по умолчанию: удаление конфигурации
// не должно отключать контроль квот.
func (r *QuotaPolicyRepository) Get(ctx context.Context) (*domain.QuotaPolicy, error) {
	var policy domain.QuotaPolicy

	err := r.db.GetContext(ctx, &policy, `
        SELECT soft_limit_percent, hard_limit_percent, grace_period_days,
               published_resource_percent, enforce_quota,
               warning_template, grace_template, enforcement_template, info_template,
               updated_at
        FROM quota_policy WHERE id = 1`)

	if err != nil {
		if err == sql.ErrNoRows {
			return domain.DefaultQuotaPolicy(), nil
		}
		return nil, fmt.Errorf("failed to get quota policy: %w", err)
	}

	return &policy, nil
}

// Update перезаписывает политику. Строка singleton, поэтому upsert по id = 1.
func (r *QuotaPolicyRepository) Update(ctx context.Context, policy *domain.QuotaPolicy) error {
	query := `
        INSERT INTO quota_policy (id, soft_limit_percent, hard_limit_percent, grace_period_days,
                                  published_resource_percent, enforce_quota,
                                  warning_template, grace_template, enforcement_template, info_template,
                                  updated_at)
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
        ON CONFLICT (id) DO UPDATE SET
            soft_limit_percent = EXCLUDED.soft_limit_percent,
            hard_limit_percent = EXCLUDED.hard_limit_percent,
            grace_period_days = EXCLUDED.grace_period_days,
            published_resource_percent = EXCLUDED.published_resource_percent,
            enforce_quota = EXCLUDED.enforce_quota,
            warning_template = EXCLUDED.warning_template,
            grace_template = EXCLUDED.grace_template,
            enforcement_template = EXCLUDED.enforcement_template,
            info_template = EXCLUDED.info_template,
            updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query,
		policy.SoftLimitPercent,
		policy.HardLimitPercent,
		policy.GracePeriodDays,
		policy.PublishedResourcePercent,
		policy.EnforceQuota,
		policy.WarningTemplate,
		policy.GraceTemplate,
		policy.EnforcementTemplate,
		policy.InfoTemplate,
	)
	if err != nil {
		return fmt.Errorf("failed to update quota policy: %w", err)
	}

	return nil
}

// Delete удаляет строку политики, возвращая систему к значениям по умолчанию
func (r *QuotaPolicyRepository) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM quota_policy WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to delete quota policy: %w", err)
	}
	return nil
}
