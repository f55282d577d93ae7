package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synxronquota/internal/domain"
)

func newTestReconciler(records *fakeRecordStore, policy *fakePolicyStore, accounts []domain.Account, providers map[string]UsageMeasurementProvider) (*ReconcilerService, *fakeNotifier) {
	notifier := &fakeNotifier{}
	m := NewGraceStateMachine(records, &fakeToggler{}, notifier)
	m.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return NewReconcilerService(records, policy, &fakeAccounts{accounts: accounts}, providers, m), notifier
}

func activeAccount(id string) domain.Account {
	return domain.Account{ID: id, Active: true}
}

func TestReconcileUpdatesMeasuredUsage(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 10))
	provider := &fakeProvider{measurement: &Measurement{UsedBytes: 60 * mb}}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	record := records.find("alice", "home")
	assert.InDelta(t, 60, record.UsedValue, 0.0001)
	assert.Equal(t, domain.StatusOK, record.Status)
}

func TestReconcileAppliesPublishedWeight(t *testing.T) {
	policy := domain.DefaultQuotaPolicy()
	policy.PublishedResourcePercent = 50

	records := newFakeRecordStore(mbRecord("alice", "home", 100, 0))
	provider := &fakeProvider{measurement: &Measurement{
		UsedBytes:      40 * mb,
		PublishedBytes: 40 * mb,
	}}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{policy: policy},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	// 40 МБ + 40 МБ * 50% = 60 МБ
	record := records.find("alice", "home")
	assert.InDelta(t, 60, record.UsedValue, 0.0001)
}

func TestReconcileAuthoritativeAllocation(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 0))
	provider := &fakeProvider{measurement: &Measurement{
		AllocatedValue: 1,
		AllocatedUnit:  domain.UnitGB,
		UsedBytes:      100 * mb,
	}}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	// 1 ГБ лимита переводится в единицы записи: 1024 МБ
	record := records.find("alice", "home")
	assert.InDelta(t, 1024, record.AllocatedValue, 0.0001)
	assert.InDelta(t, 100, record.UsedValue, 0.0001)
}

func TestReconcileMeasurementFailureSkipsAccount(t *testing.T) {
	aliceRecord := mbRecord("alice", "home", 100, 50)
	bobRecord := mbRecord("bob", "home", 100, 10)
	records := newFakeRecordStore(aliceRecord, bobRecord)

	// Сбой измерения не должен перевести аккаунт в enforcement:
	// прежнее значение остаётся, аккаунт ждёт следующего цикла
	failing := &failingPerUserProvider{
		failFor: "alice",
		good:    &Measurement{UsedBytes: 70 * mb},
	}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice"), activeAccount("bob")},
		map[string]UsageMeasurementProvider{"home": failing})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	assert.InDelta(t, 50, records.find("alice", "home").UsedValue, 0.0001)
	assert.InDelta(t, 70, records.find("bob", "home").UsedValue, 0.0001)
}

func TestReconcileNoQuotaConfiguredLeavesRecordUntouched(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 50))
	provider := &fakeProvider{err: ErrNoQuotaConfigured}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	assert.InDelta(t, 50, records.find("alice", "home").UsedValue, 0.0001)
}

func TestReconcileSkipsInactiveAndAdminAccounts(t *testing.T) {
	records := newFakeRecordStore(
		mbRecord("alice", "home", 100, 10),
		mbRecord("bob", "home", 100, 10),
	)
	provider := &fakeProvider{measurement: &Measurement{UsedBytes: 90 * mb}}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{
			{ID: "alice", Active: false},
			{ID: "bob", Active: true, Admin: true},
		},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	assert.Zero(t, provider.calls)
	assert.InDelta(t, 10, records.find("alice", "home").UsedValue, 0.0001)
	assert.InDelta(t, 10, records.find("bob", "home").UsedValue, 0.0001)
}

func TestReconcileIsIdempotent(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 10))
	provider := &fakeProvider{measurement: &Measurement{UsedBytes: 110 * mb}}

	reconciler, notifier := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	record := records.find("alice", "home")
	afterFirst := *record
	require.Equal(t, domain.StatusGrace, afterFirst.Status)
	require.NotNil(t, afterFirst.GracePeriodEnds)

	// Повторный запуск с теми же показаниями ничего не меняет:
	// ни used_value, ни дедлайн, ни число уведомлений
	require.NoError(t, reconciler.Reconcile(context.Background()))

	assert.Equal(t, afterFirst.UsedValue, record.UsedValue)
	assert.Equal(t, afterFirst.Status, record.Status)
	assert.Equal(t, *afterFirst.GracePeriodEnds, *record.GracePeriodEnds)
	assert.Len(t, notifier.notes, 1)
}

func TestReconcileDrivesStateMachineIntoEnforcement(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 10))
	provider := &fakeProvider{measurement: &Measurement{UsedBytes: 130 * mb}}

	reconciler, notifier := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	require.NoError(t, reconciler.Reconcile(context.Background()))

	record := records.find("alice", "home")
	assert.Equal(t, domain.StatusEnforced, record.Status)
	assert.True(t, record.UploadDisabled)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, domain.StatusEnforced, notifier.notes[0].status)
}

func TestRunReconcilesUntilStopped(t *testing.T) {
	records := newFakeRecordStore(mbRecord("alice", "home", 100, 10))
	measured := make(chan struct{}, 1)
	provider := &signalingProvider{
		measurement: &Measurement{UsedBytes: 20 * mb},
		measured:    measured,
	}

	reconciler, _ := newTestReconciler(records, &fakePolicyStore{},
		[]domain.Account{activeAccount("alice")},
		map[string]UsageMeasurementProvider{"home": provider})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reconciler.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-measured:
	case <-time.After(time.Second):
		t.Fatal("reconcile never ran")
	}

	// Отмена контекста останавливает тикер, не дожидаясь сигнала процесса
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

// failingPerUserProvider имитирует бэкенд, падающий только для части
// пользователей
type failingPerUserProvider struct {
	failFor string
	good    *Measurement
}

func (p *failingPerUserProvider) Measure(_ context.Context, userID, _ string) (*Measurement, error) {
	if userID == p.failFor {
		return nil, errors.New("backend command failed")
	}
	m := *p.good
	return &m, nil
}

// signalingProvider сообщает в канал о каждом измерении
type signalingProvider struct {
	measurement *Measurement
	measured    chan struct{}
}

func (p *signalingProvider) Measure(_ context.Context, _, _ string) (*Measurement, error) {
	select {
	case p.measured <- struct{}{}:
	default:
	}
	m := *p.measurement
	return &m, nil
}
