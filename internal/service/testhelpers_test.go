package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"synxronquota/internal/domain"
)

// Фейки хранилищ и внешних сервисов для юнит-тестов. База в тестах
// уровня сервисов не поднимается.

type fakeRecordStore struct {
	records []*domain.QuotaRecord
	nextID  int64
	failAll bool
}

func newFakeRecordStore(records ...*domain.QuotaRecord) *fakeRecordStore {
	s := &fakeRecordStore{nextID: 1}
	for _, r := range records {
		record := *r
		record.ID = s.nextID
		s.nextID++
		s.records = append(s.records, &record)
	}
	return s
}

func (s *fakeRecordStore) find(userID, zone string) *domain.QuotaRecord {
	for _, r := range s.records {
		if r.UserID == userID && r.Zone == zone {
			return r
		}
	}
	return nil
}

func (s *fakeRecordStore) findByID(id int64) *domain.QuotaRecord {
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *fakeRecordStore) GetRecord(_ context.Context, userID, zone string) (*domain.QuotaRecord, error) {
	if s.failAll {
		return nil, errors.New("store unavailable")
	}
	r := s.find(userID, zone)
	if r == nil {
		return nil, nil
	}
	record := *r
	return &record, nil
}

func (s *fakeRecordStore) GetByID(_ context.Context, id int64) (*domain.QuotaRecord, error) {
	r := s.findByID(id)
	if r == nil {
		return nil, fmt.Errorf("quota record not found: %d", id)
	}
	record := *r
	return &record, nil
}

func (s *fakeRecordStore) ListByUser(_ context.Context, userID string) ([]domain.QuotaRecord, error) {
	var records []domain.QuotaRecord
	for _, r := range s.records {
		if r.UserID == userID {
			records = append(records, *r)
		}
	}
	return records, nil
}

func (s *fakeRecordStore) Create(_ context.Context, record *domain.QuotaRecord) error {
	stored := *record
	stored.ID = s.nextID
	s.nextID++
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.records = append(s.records, &stored)
	record.ID = stored.ID
	return nil
}

func (s *fakeRecordStore) Reserve(_ context.Context, userID, zone string, deltaInUnit float64) (bool, error) {
	r := s.find(userID, zone)
	if r == nil {
		return false, nil
	}
	if r.UsedValue+deltaInUnit >= r.AllocatedValue {
		return false, nil
	}
	r.UsedValue += deltaInUnit
	return true, nil
}

func (s *fakeRecordStore) AddUsage(_ context.Context, userID, zone string, deltaInUnit float64) error {
	r := s.find(userID, zone)
	if r == nil {
		return fmt.Errorf("quota record not found for user %s in zone %s", userID, zone)
	}
	r.UsedValue += deltaInUnit
	if r.UsedValue < 0 {
		r.UsedValue = 0
	}
	return nil
}

func (s *fakeRecordStore) UpdateMeasured(_ context.Context, id int64, used, allocated float64) error {
	r := s.findByID(id)
	if r == nil {
		return fmt.Errorf("quota record not found: %d", id)
	}
	r.UsedValue = used
	if allocated > 0 {
		r.AllocatedValue = allocated
	}
	return nil
}

func (s *fakeRecordStore) UpdateState(_ context.Context, id int64, status domain.QuotaStatus, graceEnds *time.Time, uploadDisabled bool) error {
	r := s.findByID(id)
	if r == nil {
		return fmt.Errorf("quota record not found: %d", id)
	}
	r.Status = status
	r.GracePeriodEnds = graceEnds
	r.UploadDisabled = uploadDisabled
	return nil
}

func (s *fakeRecordStore) SetAllocation(_ context.Context, userID, zone string, allocated float64) error {
	r := s.find(userID, zone)
	if r == nil {
		return fmt.Errorf("quota record not found for user %s in zone %s", userID, zone)
	}
	r.AllocatedValue = allocated
	return nil
}

type fakePolicyStore struct {
	policy *domain.QuotaPolicy
	err    error
}

// Get ведёт себя как репозиторий: отсутствие политики — значения по умолчанию
func (s *fakePolicyStore) Get(_ context.Context) (*domain.QuotaPolicy, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.policy == nil {
		return domain.DefaultQuotaPolicy(), nil
	}
	policy := *s.policy
	return &policy, nil
}

type fakeResolver struct {
	users map[string]string // identity -> user id
	err   error
}

func (r *fakeResolver) Resolve(_ context.Context, identity string) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	id, ok := r.users[identity]
	return id, ok, nil
}

type toggleCall struct {
	userID  string
	enabled bool
}

type fakeToggler struct {
	calls []toggleCall
	err   error
}

func (t *fakeToggler) SetUploadEnabled(_ context.Context, userID string, enabled bool) error {
	if t.err != nil {
		return t.err
	}
	t.calls = append(t.calls, toggleCall{userID: userID, enabled: enabled})
	return nil
}

type notification struct {
	userID  string
	status  domain.QuotaStatus
	message string
}

type fakeNotifier struct {
	notes []notification
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, userID string, status domain.QuotaStatus, message string) error {
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, notification{userID: userID, status: status, message: message})
	return nil
}

type fakeProvider struct {
	measurement *Measurement
	err         error
	calls       int
}

func (p *fakeProvider) Measure(_ context.Context, _, _ string) (*Measurement, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	m := *p.measurement
	return &m, nil
}

type fakeAccounts struct {
	accounts []domain.Account
}

func (a *fakeAccounts) ListActiveAccounts(_ context.Context) ([]domain.Account, error) {
	return a.accounts, nil
}

type fakeResourceStore struct {
	resources map[uuid.UUID]*domain.Resource
	owners    map[uuid.UUID][]string
}

func newFakeResourceStore() *fakeResourceStore {
	return &fakeResourceStore{
		resources: make(map[uuid.UUID]*domain.Resource),
		owners:    make(map[uuid.UUID][]string),
	}
}

func (s *fakeResourceStore) GetByUUID(_ context.Context, resourceUUID uuid.UUID) (*domain.Resource, error) {
	r, ok := s.resources[resourceUUID]
	if !ok {
		return nil, domain.ErrResourceNotFound
	}
	resource := *r
	return &resource, nil
}

func (s *fakeResourceStore) IsOwner(_ context.Context, resourceUUID uuid.UUID, userID string) (bool, error) {
	for _, owner := range s.owners[resourceUUID] {
		if owner == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeResourceStore) UpdateQuotaHolder(_ context.Context, resourceUUID uuid.UUID, previousHolder, newHolder string) error {
	r, ok := s.resources[resourceUUID]
	if !ok {
		return domain.ErrResourceNotFound
	}
	if r.QuotaHolderID != previousHolder {
		return fmt.Errorf("quota holder changed concurrently for resource %s", resourceUUID)
	}
	r.QuotaHolderID = newHolder
	return nil
}

type fakeRequestStore struct {
	requests   map[uuid.UUID]*domain.QuotaRequest
	records    *fakeRecordStore
	approveErr error
}

func newFakeRequestStore(records *fakeRecordStore) *fakeRequestStore {
	return &fakeRequestStore{
		requests: make(map[uuid.UUID]*domain.QuotaRequest),
		records:  records,
	}
}

func (s *fakeRequestStore) Create(_ context.Context, request *domain.QuotaRequest) error {
	request.RequestedAt = time.Now()
	stored := *request
	s.requests[request.ID] = &stored
	return nil
}

func (s *fakeRequestStore) GetByID(_ context.Context, id uuid.UUID) (*domain.QuotaRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("quota request not found: %s", id)
	}
	request := *r
	return &request, nil
}

func (s *fakeRequestStore) ListByUser(_ context.Context, userID string) ([]domain.QuotaRequest, error) {
	var requests []domain.QuotaRequest
	for _, r := range s.requests {
		if r.UserID == userID {
			requests = append(requests, *r)
		}
	}
	return requests, nil
}

func (s *fakeRequestStore) ListPending(_ context.Context) ([]domain.QuotaRequest, error) {
	var requests []domain.QuotaRequest
	for _, r := range s.requests {
		if r.Status == domain.RequestPending {
			requests = append(requests, *r)
		}
	}
	return requests, nil
}

// Approve повторяет контракт хранилища: перевод статуса и увеличение
// лимита атомарны, при сбое не меняется ни то, ни другое
func (s *fakeRequestStore) Approve(_ context.Context, id uuid.UUID, resolvedBy string) error {
	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("quota request not found: %s", id)
	}
	if r.Status != domain.RequestPending {
		return domain.ErrRequestResolved
	}
	if s.approveErr != nil {
		return s.approveErr
	}

	record := s.records.findByID(r.RecordID)
	if record == nil {
		return fmt.Errorf("quota record not found: %d", r.RecordID)
	}
	record.AllocatedValue += r.RequestedIncrease

	now := time.Now()
	r.Status = domain.RequestApproved
	r.ResolvedAt = &now
	r.ResolvedBy = &resolvedBy
	return nil
}

func (s *fakeRequestStore) Resolve(_ context.Context, id uuid.UUID, status domain.RequestStatus, resolvedBy string) error {
	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("quota request not found: %s", id)
	}
	if r.Status != domain.RequestPending {
		return domain.ErrRequestResolved
	}
	now := time.Now()
	r.Status = status
	r.ResolvedAt = &now
	r.ResolvedBy = &resolvedBy
	return nil
}

func mbRecord(userID, zone string, allocated, used float64) *domain.QuotaRecord {
	return &domain.QuotaRecord{
		UserID:         userID,
		Zone:           zone,
		AllocatedValue: allocated,
		AllocatedUnit:  domain.UnitMB,
		UsedValue:      used,
		Status:         domain.StatusOK,
	}
}

const mb = int64(1 << 20)
