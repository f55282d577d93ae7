package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"synxronquota/internal/domain"
)

type quotaRecordStore interface {
	GetRecord(ctx context.Context, userID, zone string) (*domain.QuotaRecord, error)
	GetByID(ctx context.Context, id int64) (*domain.QuotaRecord, error)
	ListByUser(ctx context.Context, userID string) ([]domain.QuotaRecord, error)
	Create(ctx context.Context, record *domain.QuotaRecord) error
	Reserve(ctx context.Context, userID, zone string, deltaInUnit float64) (bool, error)
	AddUsage(ctx context.Context, userID, zone string, deltaInUnit float64) error
	UpdateMeasured(ctx context.Context, id int64, used, allocated float64) error
	UpdateState(ctx context.Context, id int64, status domain.QuotaStatus, graceEnds *time.Time, uploadDisabled bool) error
	SetAllocation(ctx context.Context, userID, zone string, allocated float64) error
}

type policyStore interface {
	Get(ctx context.Context) (*domain.QuotaPolicy, error)
}

type identityResolver interface {
	// Resolve переводит идентификатор (токен, email, id) в id аккаунта.
	// found = false означает, что аккаунта нет; это не ошибка.
	Resolve(ctx context.Context, identity string) (userID string, found bool, err error)
}

// QuotaService — шлюз проверки квоты. Вызывается синхронно перед любой
// операцией, увеличивающей занятое место.
type QuotaService struct {
	recordRepo  quotaRecordStore
	policyRepo  policyStore
	resolver    identityResolver
	defaultZone string
	now         func() time.Time
}

func NewQuotaService(recordRepo quotaRecordStore, policyRepo policyStore, resolver identityResolver, defaultZone string) *QuotaService {
	return &QuotaService{
		recordRepo:  recordRepo,
		policyRepo:  policyRepo,
		resolver:    resolver,
		defaultZone: defaultZone,
		now:         time.Now,
	}
}

// ValidateQuota проверяет, поместится ли дельта в квоту зоны по умолчанию.
// Нерезолвящийся идентификатор и отсутствующая запись квоты намеренно
// пропускаются без ошибки: часть вызывающих передаёт анонимные или
// необязательные идентификаторы. Осознанный default-allow, отмечен
// для продуктового ревью.
func (s *QuotaService) ValidateQuota(ctx context.Context, identity string, sizeDeltaBytes int64) error {
	return s.ValidateQuotaZone(ctx, identity, s.defaultZone, sizeDeltaBytes)
}

// ValidateQuotaZone — то же, что ValidateQuota, для явной зоны
func (s *QuotaService) ValidateQuotaZone(ctx context.Context, identity, zone string, sizeDeltaBytes int64) error {
	// Нулевая и отрицательная дельта место не занимают
	if sizeDeltaBytes <= 0 {
		return nil
	}

	eval, record, policy, err := s.evaluate(ctx, identity, zone, sizeDeltaBytes)
	if err != nil || record == nil {
		return err
	}

	if !policy.EnforceQuota {
		// Контроль выключен: статус считаем только для наблюдаемости
		log.Printf("[Quota] enforcement disabled, user %s zone %s would be %s (%s)",
			record.UserID, zone, eval.Status, eval.Message)
		return nil
	}

	// Граница включительная: ровно 100%% — уже превышение
	if eval.Percent >= 100 {
		return &domain.QuotaExceededError{Message: eval.Message}
	}

	return nil
}

// ChargeQuota атомарно резервирует дельту в счёт квоты. В отличие от
// ValidateQuota проверка и инкремент выполняются одним условным UPDATE,
// поэтому две параллельные загрузки не могут обе пройти по одному и тому
// же прочитанному used_value.
func (s *QuotaService) ChargeQuota(ctx context.Context, identity, zone string, sizeDeltaBytes int64) error {
	if sizeDeltaBytes <= 0 {
		return nil
	}

	userID, found, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !found {
		return nil
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		return nil
	}

	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get quota policy: %w", err)
	}

	deltaInUnit := domain.BytesToUnit(sizeDeltaBytes, record.AllocatedUnit)

	if !policy.EnforceQuota {
		if err := s.recordRepo.AddUsage(ctx, userID, zone, deltaInUnit); err != nil {
			return fmt.Errorf("failed to add usage: %w", err)
		}
		return nil
	}

	reserved, err := s.recordRepo.Reserve(ctx, userID, zone, deltaInUnit)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	if !reserved {
		eval := EvaluateQuota(record, policy, sizeDeltaBytes)
		return &domain.QuotaExceededError{Message: eval.Message}
	}

	return nil
}

// ReleaseQuota возвращает место после удаления данных
func (s *QuotaService) ReleaseQuota(ctx context.Context, identity, zone string, sizeBytes int64) error {
	if sizeBytes <= 0 {
		return nil
	}

	userID, found, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !found {
		return nil
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		return nil
	}

	deltaInUnit := domain.BytesToUnit(sizeBytes, record.AllocatedUnit)
	if err := s.recordRepo.AddUsage(ctx, userID, zone, -deltaInUnit); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}

	return nil
}

// CheckCurrentUsage отклоняет пользователей, уже находящихся на жёстком
// лимите (или с истёкшим льготным периодом), без учёта новой дельты.
// Используется при передаче держателя квоты.
func (s *QuotaService) CheckCurrentUsage(ctx context.Context, identity, zone string) error {
	userID, found, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !found {
		return nil
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		return nil
	}

	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get quota policy: %w", err)
	}

	if !policy.EnforceQuota {
		return nil
	}

	if EffectiveStatus(record, policy, s.now()) == domain.StatusEnforced {
		eval := EvaluateQuota(record, policy, 0)
		return &domain.QuotaExceededError{Message: eval.Message}
	}

	return nil
}

// GetQuotaStatus возвращает состояние квоты пользователя в зоне.
// Истёкший льготный период здесь уже виден как enforced.
func (s *QuotaService) GetQuotaStatus(ctx context.Context, identity, zone string) (*domain.QuotaStatusInfo, error) {
	userID, found, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("user not found: %s", identity)
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}

	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota policy: %w", err)
	}

	return &domain.QuotaStatusInfo{
		Allocated:       record.AllocatedValue,
		Used:            record.UsedValue,
		Unit:            record.AllocatedUnit,
		Zone:            record.Zone,
		Status:          EffectiveStatus(record, policy, s.now()),
		GracePeriodEnds: record.GracePeriodEnds,
	}, nil
}

// SetAllocation — административное переопределение лимита
func (s *QuotaService) SetAllocation(ctx context.Context, userID, zone string, allocated float64) error {
	if allocated <= 0 {
		return fmt.Errorf("allocation must be positive")
	}
	return s.recordRepo.SetAllocation(ctx, userID, zone, allocated)
}

// ProvisionRecord создаёт запись квоты с выделением по умолчанию.
// Вызывается при заведении аккаунта.
func (s *QuotaService) ProvisionRecord(ctx context.Context, userID, zone string, allocated float64, unit string) (*domain.QuotaRecord, error) {
	record := &domain.QuotaRecord{
		UserID:         userID,
		Zone:           zone,
		AllocatedValue: allocated,
		AllocatedUnit:  unit,
		UsedValue:      0,
		Status:         domain.StatusOK,
	}

	if err := s.recordRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create quota record: %w", err)
	}

	return record, nil
}

func (s *QuotaService) evaluate(ctx context.Context, identity, zone string, sizeDeltaBytes int64) (Evaluation, *domain.QuotaRecord, *domain.QuotaPolicy, error) {
	userID, found, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return Evaluation{}, nil, nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if !found {
		// Аккаунта нет — пропускаем молча
		return Evaluation{}, nil, nil, nil
	}

	record, err := s.recordRepo.GetRecord(ctx, userID, zone)
	if err != nil {
		return Evaluation{}, nil, nil, fmt.Errorf("failed to get quota record: %w", err)
	}
	if record == nil {
		// Квота в этой зоне не подключена
		return Evaluation{}, nil, nil, nil
	}

	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return Evaluation{}, nil, nil, fmt.Errorf("failed to get quota policy: %w", err)
	}

	return EvaluateQuota(record, policy, sizeDeltaBytes), record, policy, nil
}
