package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"synxronquota/internal/domain"
)

type ResourceRepository struct {
	db *sqlx.DB
}

func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) GetByUUID(ctx context.Context, resourceUUID uuid.UUID) (*domain.Resource, error) {
	var resource domain.Resource

	err := r.db.GetContext(ctx, &resource,
		`SELECT * FROM resources WHERE uuid = $1`, resourceUUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	return &resource, nil
}

// IsOwner проверяет, числится ли пользователь среди текущих владельцев ресурса
func (r *ResourceRepository) IsOwner(ctx context.Context, resourceUUID uuid.UUID, userID string) (bool, error) {
	var exists bool

	err := r.db.GetContext(ctx, &exists, `
        SELECT EXISTS(
            SELECT 1 FROM resource_owners
            WHERE resource_uuid = $1 AND user_id = $2
        )`, resourceUUID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check resource ownership: %w", err)
	}

	return exists, nil
}

func (r *ResourceRepository) ListOwners(ctx context.Context, resourceUUID uuid.UUID) ([]string, error) {
	var owners []string

	err := r.db.SelectContext(ctx, &owners,
		`SELECT user_id FROM resource_owners WHERE resource_uuid = $1 ORDER BY user_id`,
		resourceUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource owners: %w", err)
	}

	return owners, nil
}

// UpdateQuotaHolder меняет держателя квоты. Условие по прежнему держателю
// защищает от гонки двух одновременных передач.
func (r *ResourceRepository) UpdateQuotaHolder(ctx context.Context, resourceUUID uuid.UUID, previousHolder, newHolder string) error {
	query := `
        UPDATE resources
        SET quota_holder_id = $1
        WHERE uuid = $2 AND quota_holder_id = $3`

	result, err := r.db.ExecContext(ctx, query, newHolder, resourceUUID, previousHolder)
	if err != nil {
		return fmt.Errorf("failed to update quota holder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota holder changed concurrently for resource %s", resourceUUID)
	}

	return nil
}

// MeasureUsage суммирует размеры ресурсов пользователя в зоне, отдельно
// обычные и опубликованные: вес опубликованных задаёт политика, поэтому
// взвешивание выполняется выше, при сверке.
func (r *ResourceRepository) MeasureUsage(ctx context.Context, userID, zone string) (privateBytes, publishedBytes int64, err error) {
	query := `
        SELECT COALESCE(SUM(size_bytes) FILTER (WHERE NOT published), 0) AS private_bytes,
               COALESCE(SUM(size_bytes) FILTER (WHERE published), 0) AS published_bytes
        FROM resources
        WHERE quota_holder_id = $1 AND zone = $2`

	err = r.db.QueryRowContext(ctx, query, userID, zone).Scan(&privateBytes, &publishedBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure resource usage: %w", err)
	}

	return privateBytes, publishedBytes, nil
}
