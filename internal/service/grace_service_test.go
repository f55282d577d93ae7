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

func newTestStateMachine(records *fakeRecordStore) (*GraceStateMachine, *fakeToggler, *fakeNotifier) {
	toggler := &fakeToggler{}
	notifier := &fakeNotifier{}
	m := NewGraceStateMachine(records, toggler, notifier)
	m.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return m, toggler, notifier
}

func TestStateMachineBelowSoftLimitClearsGrace(t *testing.T) {
	record := mbRecord("alice", "home", 100, 50)
	ends := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	record.GracePeriodEnds = &ends
	record.Status = domain.StatusGrace

	records := newFakeRecordStore(record)
	m, _, _ := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.Equal(t, domain.StatusOK, stored.Status)
	assert.Nil(t, stored.GracePeriodEnds)
}

func TestStateMachineReenablesUploadsOnRecovery(t *testing.T) {
	record := mbRecord("alice", "home", 100, 50)
	record.Status = domain.StatusEnforced
	record.UploadDisabled = true

	records := newFakeRecordStore(record)
	m, toggler, _ := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.False(t, stored.UploadDisabled)
	require.Len(t, toggler.calls, 1)
	assert.Equal(t, toggleCall{userID: "alice", enabled: true}, toggler.calls[0])
}

func TestStateMachineWarningDoesNotTouchGraceFields(t *testing.T) {
	record := mbRecord("alice", "home", 100, 85)
	records := newFakeRecordStore(record)
	m, toggler, notifier := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.Equal(t, domain.StatusWarning, stored.Status)
	assert.Nil(t, stored.GracePeriodEnds)
	assert.Empty(t, toggler.calls)

	// Переход ok -> warning уведомляет
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, domain.StatusWarning, notifier.notes[0].status)
}

func TestStateMachineFirstCrossingStartsGrace(t *testing.T) {
	record := mbRecord("alice", "home", 100, 110)
	records := newFakeRecordStore(record)
	m, _, notifier := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.Equal(t, domain.StatusGrace, stored.Status)
	require.NotNil(t, stored.GracePeriodEnds)
	assert.Equal(t, time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC), *stored.GracePeriodEnds)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, domain.StatusGrace, notifier.notes[0].status)
	// Дедлайн уже подставлен в уведомление о начале льготного периода
	assert.Contains(t, notifier.notes[0].message, "2026-03-17")
}

func TestStateMachineSecondCycleDoesNotExtendGrace(t *testing.T) {
	record := mbRecord("alice", "home", 100, 110)
	records := newFakeRecordStore(record)
	m, _, notifier := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))
	firstDeadline := *stored.GracePeriodEnds

	// Второй цикл в той же полосе: дедлайн не сдвигается,
	// повторного уведомления нет
	m.now = func() time.Time {
		return time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	}
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	require.NotNil(t, stored.GracePeriodEnds)
	assert.Equal(t, firstDeadline, *stored.GracePeriodEnds)
	assert.Len(t, notifier.notes, 1)
}

func TestStateMachineHardLimitEnforcesImmediately(t *testing.T) {
	record := mbRecord("alice", "home", 100, 130)
	ends := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	record.GracePeriodEnds = &ends
	record.Status = domain.StatusGrace

	records := newFakeRecordStore(record)
	m, toggler, notifier := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.Equal(t, domain.StatusEnforced, stored.Status)
	// За жёстким лимитом льготного периода нет
	assert.Nil(t, stored.GracePeriodEnds)
	assert.True(t, stored.UploadDisabled)

	require.Len(t, toggler.calls, 1)
	assert.Equal(t, toggleCall{userID: "alice", enabled: false}, toggler.calls[0])

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, domain.StatusEnforced, notifier.notes[0].status)
}

func TestStateMachineSideEffectFailuresDoNotAbortTransition(t *testing.T) {
	record := mbRecord("alice", "home", 100, 130)
	records := newFakeRecordStore(record)

	toggler := &fakeToggler{err: errors.New("auth service unreachable")}
	notifier := &fakeNotifier{err: errors.New("webhook down")}
	m := NewGraceStateMachine(records, toggler, notifier)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	// Состояние учёта остаётся согласованным, несмотря на сбои соседей
	assert.Equal(t, domain.StatusEnforced, stored.Status)
	assert.True(t, stored.UploadDisabled)
}

func TestStateMachineNoNotificationWithoutTransition(t *testing.T) {
	record := mbRecord("alice", "home", 100, 85)
	record.Status = domain.StatusWarning

	records := newFakeRecordStore(record)
	m, _, notifier := newTestStateMachine(records)

	stored := records.find("alice", "home")
	require.NoError(t, m.Apply(context.Background(), stored, domain.DefaultQuotaPolicy()))

	assert.Empty(t, notifier.notes)
}
