package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"synxronquota/internal/domain"
)

type resourceStore interface {
	GetByUUID(ctx context.Context, resourceUUID uuid.UUID) (*domain.Resource, error)
	IsOwner(ctx context.Context, resourceUUID uuid.UUID, userID string) (bool, error)
	UpdateQuotaHolder(ctx context.Context, resourceUUID uuid.UUID, previousHolder, newHolder string) error
}

// QuotaHolderService выполняет передачу держателя квоты. Операция строго
// всё-или-ничего: либо держатель меняется, либо не меняется ничего.
type QuotaHolderService struct {
	resourceRepo resourceStore
	quotaService *QuotaService
}

func NewQuotaHolderService(resourceRepo resourceStore, quotaService *QuotaService) *QuotaHolderService {
	return &QuotaHolderService{
		resourceRepo: resourceRepo,
		quotaService: quotaService,
	}
}

// TransferQuotaHolder назначает новым держателем квоты другого владельца
// ресурса. Инициатор и новый держатель обязаны быть текущими владельцами;
// сервис доступа, в свою очередь, не даст отобрать владение у текущего
// держателя. Новый держатель не должен стоять на жёстком лимите:
// проверяется текущее использование, без дельты.
func (s *QuotaHolderService) TransferQuotaHolder(ctx context.Context, resourceUUID uuid.UUID, requestingOwner, newOwner string) error {
	resource, err := s.resourceRepo.GetByUUID(ctx, resourceUUID)
	if err != nil {
		return fmt.Errorf("failed to load resource: %w", err)
	}

	requesterIsOwner, err := s.resourceRepo.IsOwner(ctx, resourceUUID, requestingOwner)
	if err != nil {
		return fmt.Errorf("failed to check requesting owner: %w", err)
	}
	if !requesterIsOwner {
		return domain.ErrPermissionDenied
	}

	newIsOwner, err := s.resourceRepo.IsOwner(ctx, resourceUUID, newOwner)
	if err != nil {
		return fmt.Errorf("failed to check new owner: %w", err)
	}
	if !newIsOwner {
		return domain.ErrPermissionDenied
	}

	if err := s.quotaService.CheckCurrentUsage(ctx, newOwner, resource.Zone); err != nil {
		// QuotaExceeded или инфраструктурная ошибка: мутаций ещё не было
		return err
	}

	if err := s.resourceRepo.UpdateQuotaHolder(ctx, resourceUUID, resource.QuotaHolderID, newOwner); err != nil {
		return fmt.Errorf("failed to transfer quota holder: %w", err)
	}

	return nil
}
