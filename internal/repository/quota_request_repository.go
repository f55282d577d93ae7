package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"synxronquota/internal/domain"
)

type QuotaRequestRepository struct {
	db *sqlx.DB
}

func NewQuotaRequestRepository(db *sqlx.DB) *QuotaRequestRepository {
	return &QuotaRequestRepository{db: db}
}

func (r *QuotaRequestRepository) Create(ctx context.Context, request *domain.QuotaRequest) error {
	query := `
        INSERT INTO quota_requests (id, user_id, record_id, requested_increase, justification, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING requested_at`

	return r.db.QueryRowContext(ctx, query,
		request.ID,
		request.UserID,
		request.RecordID,
		request.RequestedIncrease,
		request.Justification,
		request.Status,
	).Scan(&request.RequestedAt)
}

func (r *QuotaRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QuotaRequest, error) {
	var request domain.QuotaRequest

	err := r.db.GetContext(ctx, &request,
		`SELECT * FROM quota_requests WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota request: %w", err)
	}

	return &request, nil
}

func (r *QuotaRequestRepository) ListByUser(ctx context.Context, userID string) ([]domain.QuotaRequest, error) {
	var requests []domain.QuotaRequest

	err := r.db.SelectContext(ctx, &requests,
		`SELECT * FROM quota_requests WHERE user_id = $1 ORDER BY requested_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quota requests: %w", err)
	}

	return requests, nil
}

func (r *QuotaRequestRepository) ListPending(ctx context.Context) ([]domain.QuotaRequest, error) {
	var requests []domain.QuotaRequest

	err := r.db.SelectContext(ctx, &requests,
		`SELECT * FROM quota_requests WHERE status = $1 ORDER BY requested_at`,
		domain.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending quota requests: %w", err)
	}

	return requests, nil
}

// Approve переводит заявку в approved и увеличивает лимит её записи одним
// оператором: UPDATE заявки в CTE, UPDATE записи снаружи. Заявка не может
// остаться approved с неприменённым увеличением — при любом сбое оператор
// откатывается целиком. Существование записи гарантирует внешний ключ
// record_id с каскадным удалением.
func (r *QuotaRequestRepository) Approve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	query := `
        WITH resolved AS (
            UPDATE quota_requests
            SET status = $1,
                resolved_at = CURRENT_TIMESTAMP,
                resolved_by = $2
            WHERE id = $3 AND status = $4
            RETURNING record_id, requested_increase
        )
        UPDATE quota_records
        SET allocated_value = quota_records.allocated_value + resolved.requested_increase,
            updated_at = CURRENT_TIMESTAMP
        FROM resolved
        WHERE quota_records.id = resolved.record_id`

	result, err := r.db.ExecContext(ctx, query,
		domain.RequestApproved, resolvedBy, id, domain.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to approve quota request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrRequestResolved
	}

	return nil
}

// Resolve переводит заявку из pending в конечный статус. Условие
// status = 'pending' в WHERE гарантирует, что перевод случится ровно
// один раз даже при конкурирующих административных действиях.
func (r *QuotaRequestRepository) Resolve(ctx context.Context, id uuid.UUID, status domain.RequestStatus, resolvedBy string) error {
	query := `
        UPDATE quota_requests
        SET status = $1,
            resolved_at = CURRENT_TIMESTAMP,
            resolved_by = $2
        WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, status, resolvedBy, id, domain.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to resolve quota request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrRequestResolved
	}

	return nil
}
