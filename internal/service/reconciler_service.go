package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"synxronquota/internal/domain"
)

type accountDirectory interface {
	ListActiveAccounts(ctx context.Context) ([]domain.Account, error)
}

// ReconcilerService периодически сверяет учтённое использование с
// показаниями бэкендов хранилища и прогоняет записи через машину
// состояний. Запускается внешним планировщиком; собственного
// расписания у сервиса нет.
type ReconcilerService struct {
	recordRepo   quotaRecordStore
	policyRepo   policyStore
	accounts     accountDirectory
	providers    map[string]UsageMeasurementProvider
	stateMachine *GraceStateMachine
}

func NewReconcilerService(
	recordRepo quotaRecordStore,
	policyRepo policyStore,
	accounts accountDirectory,
	providers map[string]UsageMeasurementProvider,
	stateMachine *GraceStateMachine,
) *ReconcilerService {
	return &ReconcilerService{
		recordRepo:   recordRepo,
		policyRepo:   policyRepo,
		accounts:     accounts,
		providers:    providers,
		stateMachine: stateMachine,
	}
}

// Run запускает встроенный тикер сверки и блокируется до отмены контекста
func (s *ReconcilerService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				log.Printf("[Reconciler] scheduled reconciliation failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Reconcile обходит все активные неадминистративные аккаунты и обновляет
// их записи квот. Каждый аккаунт обрабатывается независимо: сбой измерения
// логируется и аккаунт пропускается до следующего цикла, прежнее значение
// used_value остаётся нетронутым. Временный сбой измерения никогда не
// должен перевести аккаунт в enforcement. Повторный запуск безопасен.
func (s *ReconcilerService) Reconcile(ctx context.Context) error {
	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get quota policy: %w", err)
	}

	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	var processed, skipped int
	for _, account := range accounts {
		if !account.Active || account.Admin {
			continue
		}

		if err := s.reconcileAccount(ctx, account.ID, policy); err != nil {
			log.Printf("[Reconciler] skipping account %s for this cycle: %v", account.ID, err)
			skipped++
			continue
		}
		processed++
	}

	log.Printf("[Reconciler] cycle finished: %d accounts processed, %d skipped", processed, skipped)
	return nil
}

func (s *ReconcilerService) reconcileAccount(ctx context.Context, userID string, policy *domain.QuotaPolicy) error {
	records, err := s.recordRepo.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list quota records: %w", err)
	}

	for i := range records {
		record := &records[i]

		provider, ok := s.providers[record.Zone]
		if !ok {
			log.Printf("[Reconciler] no measurement provider for zone %s, leaving record %d as is",
				record.Zone, record.ID)
			continue
		}

		measurement, err := provider.Measure(ctx, userID, record.Zone)
		if err != nil {
			if errors.Is(err, ErrNoQuotaConfigured) {
				// Бэкенд квоту не настроил — ведём себя как при
				// отсутствующей записи
				continue
			}
			return fmt.Errorf("failed to measure zone %s: %w", record.Zone, err)
		}

		// Вес опубликованных данных задаёт политика, поэтому
		// взвешивание выполняется здесь, а не в провайдере
		usedBytes := float64(measurement.UsedBytes) +
			float64(measurement.PublishedBytes)*policy.PublishedResourcePercent/100
		usedInUnit := usedBytes / domain.UnitSize(record.AllocatedUnit)

		// allocated > 0 только когда бэкенд авторитетен для лимита
		var allocatedInUnit float64
		if measurement.AllocatedValue > 0 {
			allocatedInUnit = measurement.AllocatedValue *
				domain.UnitSize(measurement.AllocatedUnit) / domain.UnitSize(record.AllocatedUnit)
		}

		if err := s.recordRepo.UpdateMeasured(ctx, record.ID, usedInUnit, allocatedInUnit); err != nil {
			return fmt.Errorf("failed to store measured usage: %w", err)
		}

		record.UsedValue = usedInUnit
		if allocatedInUnit > 0 {
			record.AllocatedValue = allocatedInUnit
		}

		if err := s.stateMachine.Apply(ctx, record, policy); err != nil {
			return fmt.Errorf("failed to apply quota state machine: %w", err)
		}
	}

	return nil
}
