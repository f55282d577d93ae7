package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"synxronquota/internal/domain"
)

type QuotaRecordRepository struct {
	db *sqlx.DB
}

func NewQuotaRecordRepository(db *sqlx.DB) *QuotaRecordRepository {
	return &QuotaRecordRepository{db: db}
}

// GetRecord возвращает запись квоты для пары (user, zone).
// Отсутствие записи не ошибка: квота подключается по-зонно,
// поэтому возвращаем (nil, nil) и решение принимает вызывающий.
func (r *QuotaRecordRepository) GetRecord(ctx context.Context, userID, zone string) (*domain.QuotaRecord, error) {
	var record domain.QuotaRecord

	err := r.db.GetContext(ctx, &record,
		`SELECT * FROM quota_records WHERE user_id = $1 AND zone = $2`,
		userID, zone)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}

	return &record, nil
}

func (r *QuotaRecordRepository) Create(ctx context.Context, record *domain.QuotaRecord) error {
	query := `
        INSERT INTO quota_records (user_id, zone, allocated_value, allocated_unit, used_value, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		record.UserID,
		record.Zone,
		record.AllocatedValue,
		record.AllocatedUnit,
		record.UsedValue,
		domain.StatusOK,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
}

// ListByUser возвращает все записи квот пользователя
func (r *QuotaRecordRepository) ListByUser(ctx context.Context, userID string) ([]domain.QuotaRecord, error) {
	var records []domain.QuotaRecord

	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM quota_records WHERE user_id = $1 ORDER BY zone`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quota records: %w", err)
	}

	return records, nil
}

// Reserve атомарно прибавляет дельту к used_value, только если после
// прибавления использование останется строго меньше лимита. Условие и
// инкремент выполняются одним UPDATE, поэтому параллельные загрузки
// не могут совместно проскочить лимит, прочитав старое значение.
// Возвращает (false, nil), если места не хватило.
func (r *QuotaRecordRepository) Reserve(ctx context.Context, userID, zone string, deltaInUnit float64) (bool, error) {
	query := `
        UPDATE quota_records
        SET used_value = used_value + $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND zone = $3
          AND used_value + $1 < allocated_value`

	result, err := r.db.ExecContext(ctx, query, deltaInUnit, userID, zone)
	if err != nil {
		return false, fmt.Errorf("failed to reserve quota: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// AddUsage безусловно сдвигает used_value на дельту (в обе стороны),
// не опускаясь ниже нуля. Используется для освобождения места и для
// учёта загрузок при выключенном контроле квот.
func (r *QuotaRecordRepository) AddUsage(ctx context.Context, userID, zone string, deltaInUnit float64) error {
	query := `
        UPDATE quota_records
        SET used_value = GREATEST(0, used_value + $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND zone = $3`

	result, err := r.db.ExecContext(ctx, query, deltaInUnit, userID, zone)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota record not found for user %s in zone %s", userID, zone)
	}

	return nil
}

// UpdateMeasured перезаписывает used_value результатом сверки с хранилищем.
// Если бэкенд авторитетен и для лимита, allocated > 0 обновляет и его.
func (r *QuotaRecordRepository) UpdateMeasured(ctx context.Context, id int64, used, allocated float64) error {
	query := `
        UPDATE quota_records
        SET used_value = $1,
            allocated_value = CASE WHEN $2 > 0 THEN $2 ELSE allocated_value END,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, used, allocated, id)
	if err != nil {
		return fmt.Errorf("failed to update measured usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota record not found: %d", id)
	}

	return nil
}

// UpdateState сохраняет результат работы машины состояний
func (r *QuotaRecordRepository) UpdateState(ctx context.Context, id int64, status domain.QuotaStatus, graceEnds *time.Time, uploadDisabled bool) error {
	query := `
        UPDATE quota_records
        SET status = $1,
            grace_period_ends = $2,
            upload_disabled = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, status, graceEnds, uploadDisabled, id)
	if err != nil {
		return fmt.Errorf("failed to update quota state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota record not found: %d", id)
	}

	return nil
}

// SetAllocation выставляет лимит напрямую (административное переопределение)
func (r *QuotaRecordRepository) SetAllocation(ctx context.Context, userID, zone string, allocated float64) error {
	query := `
        UPDATE quota_records
        SET allocated_value = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND zone = $3`

	result, err := r.db.ExecContext(ctx, query, allocated, userID, zone)
	if err != nil {
		return fmt.Errorf("failed to set allocation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota record not found for user %s in zone %s", userID, zone)
	}

	return nil
}

func (r *QuotaRecordRepository) GetByID(ctx context.Context, id int64) (*domain.QuotaRecord, error) {
	var record domain.QuotaRecord

	err := r.db.GetContext(ctx, &record,
		`SELECT * FROM quota_records WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}

	return &record, nil
}

// Delete удаляет все записи пользователя при окончательном удалении аккаунта
func (r *QuotaRecordRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM quota_records WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete quota records: %w", err)
	}
	return nil
}
