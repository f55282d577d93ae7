package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"synxronquota/internal/domain"
)

type quotaRequestStore interface {
	Create(ctx context.Context, request *domain.QuotaRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QuotaRequest, error)
	ListByUser(ctx context.Context, userID string) ([]domain.QuotaRequest, error)
	ListPending(ctx context.Context) ([]domain.QuotaRequest, error)
	Approve(ctx context.Context, id uuid.UUID, resolvedBy string) error
	Resolve(ctx context.Context, id uuid.UUID, status domain.RequestStatus, resolvedBy string) error
}

// QuotaRequestService — административный цикл заявок на увеличение квоты
type QuotaRequestService struct {
	requestRepo quotaRequestStore
	recordRepo  quotaRecordStore
	notifier    statusNotifier
}

func NewQuotaRequestService(requestRepo quotaRequestStore, recordRepo quotaRecordStore, notifier statusNotifier) *QuotaRequestService {
	return &QuotaRequestService{
		requestRepo: requestRepo,
		recordRepo:  recordRepo,
		notifier:    notifier,
	}
}

// Submit создаёт заявку в статусе pending
func (s *QuotaRequestService) Submit(ctx context.Context, userID, zone string, requestedIncrease float64, justification string) (*domain.QuotaRequest, error) {
	if requestedIncrease <= 0 {
		return nil, fmt.Errorf("requested increase must be positive")
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}

	request := &domain.QuotaRequest{
		ID:                uuid.New(),
		UserID:            userID,
		RecordID:          record.ID,
		RequestedIncrease: requestedIncrease,
		Justification:     justification,
		Status:            domain.RequestPending,
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create quota request: %w", err)
	}

	return request, nil
}

// Approve одобряет заявку и увеличивает лимит записи. Единственный путь
// увеличения allocated_value через заявки. Перевод статуса и увеличение
// лимита — одна атомарная запись в хранилище: заявка не может остаться
// approved без применённого увеличения, а повторное одобрение не увеличит
// лимит дважды. Лимит применяется до уведомления: сбой уведомления
// изменение не откатывает.
func (s *QuotaRequestService) Approve(ctx context.Context, id uuid.UUID, adminID string) error {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get quota request: %w", err)
	}

	if err := s.requestRepo.Approve(ctx, id, adminID); err != nil {
		return err
	}

	s.notifyResolved(ctx, request, domain.RequestApproved)
	return nil
}

// Deny отклоняет заявку
func (s *QuotaRequestService) Deny(ctx context.Context, id uuid.UUID, adminID string) error {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get quota request: %w", err)
	}

	if err := s.requestRepo.Resolve(ctx, id, domain.RequestDenied, adminID); err != nil {
		return err
	}

	s.notifyResolved(ctx, request, domain.RequestDenied)
	return nil
}

// Revoke отзывает заявку; доступен самому автору, пока заявка pending
func (s *QuotaRequestService) Revoke(ctx context.Context, id uuid.UUID, userID string) error {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get quota request: %w", err)
	}

	if request.UserID != userID {
		return domain.ErrPermissionDenied
	}

	return s.requestRepo.Resolve(ctx, id, domain.RequestRevoked, userID)
}

func (s *QuotaRequestService) ListByUser(ctx context.Context, userID string) ([]domain.QuotaRequest, error) {
	return s.requestRepo.ListByUser(ctx, userID)
}

func (s *QuotaRequestService) ListPending(ctx context.Context) ([]domain.QuotaRequest, error) {
	return s.requestRepo.ListPending(ctx)
}

func (s *QuotaRequestService) notifyResolved(ctx context.Context, request *domain.QuotaRequest, status domain.RequestStatus) {
	message := fmt.Sprintf("Your quota request for an additional %s has been %s.",
		formatRounded(request.RequestedIncrease, 4), status)

	if err := s.notifier.Notify(ctx, request.UserID, domain.StatusOK, message); err != nil {
		log.Printf("[QuotaRequest] failed to notify user %s about %s request: %v",
			request.UserID, status, err)
	}
}
