package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"synxronquota/internal/domain"
)

type uploadToggler interface {
	SetUploadEnabled(ctx context.Context, userID string, enabled bool) error
}

type statusNotifier interface {
	Notify(ctx context.Context, userID string, status domain.QuotaStatus, message string) error
}

// GraceStateMachine управляет переходами none -> warning -> grace -> enforced
// и обратными в none. Применяется к каждой записи один раз за цикл сверки.
type GraceStateMachine struct {
	recordRepo quotaRecordStore
	toggler    uploadToggler
	notifier   statusNotifier
	now        func() time.Time
}

func NewGraceStateMachine(recordRepo quotaRecordStore, toggler uploadToggler, notifier statusNotifier) *GraceStateMachine {
	return &GraceStateMachine{
		recordRepo: recordRepo,
		toggler:    toggler,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Apply прогоняет запись через машину состояний и сохраняет результат.
// Побочные эффекты (переключение загрузок, уведомление) выполняются по
// принципу fire-and-forget: их сбой логируется, но переход состояния
// не откатывает — учёт должен оставаться согласованным, даже когда
// соседний сервис недоступен.
func (m *GraceStateMachine) Apply(ctx context.Context, record *domain.QuotaRecord, policy *domain.QuotaPolicy) error {
	eval := EvaluateQuota(record, policy, 0)
	previous := record.Status

	graceEnds := record.GracePeriodEnds
	uploadDisabled := record.UploadDisabled
	graceStarted := false

	switch eval.Status {
	case domain.StatusOK:
		graceEnds = nil
		if uploadDisabled {
			m.setUploadEnabled(ctx, record.UserID, true)
			uploadDisabled = false
		}

	case domain.StatusWarning:
		// Поля льготного периода не трогаем

	case domain.StatusGrace:
		// Дедлайн выставляется только при первом пересечении 100%:
		// повторные циклы в той же полосе его не продлевают
		if graceEnds == nil {
			ends := m.now().AddDate(0, 0, policy.GracePeriodDays)
			graceEnds = &ends
			graceStarted = true
		}

	case domain.StatusEnforced:
		// За жёстким лимитом льготного периода нет
		graceEnds = nil
		if !uploadDisabled {
			m.setUploadEnabled(ctx, record.UserID, false)
			uploadDisabled = true
		}
	}

	// Сообщение собираем после выставления дедлайна, чтобы
	// {cut_off_date} был заполнен в уведомлении о начале льготного периода
	record.GracePeriodEnds = graceEnds
	record.UploadDisabled = uploadDisabled
	record.Status = eval.Status

	if err := m.recordRepo.UpdateState(ctx, record.ID, eval.Status, graceEnds, uploadDisabled); err != nil {
		return fmt.Errorf("failed to persist quota state: %w", err)
	}

	entered := eval.Status != previous && eval.Status != domain.StatusOK
	if entered || graceStarted {
		message := formatQuotaMessage(record, policy, eval.Status, eval.Projected, eval.Percent)
		if err := m.notifier.Notify(ctx, record.UserID, eval.Status, message); err != nil {
			log.Printf("[GraceStateMachine] failed to notify user %s about %s: %v",
				record.UserID, eval.Status, err)
		}
	}

	return nil
}

func (m *GraceStateMachine) setUploadEnabled(ctx context.Context, userID string, enabled bool) {
	if err := m.toggler.SetUploadEnabled(ctx, userID, enabled); err != nil {
		log.Printf("[GraceStateMachine] failed to set upload enabled=%t for user %s: %v",
			enabled, userID, err)
	}
}
