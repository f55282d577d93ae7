package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"synxronquota/internal/auth"
	"synxronquota/internal/domain"
	"synxronquota/internal/service"
)

type policyStore interface {
	Get(ctx context.Context) (*domain.QuotaPolicy, error)
	Update(ctx context.Context, policy *domain.QuotaPolicy) error
}

type QuotaHandler struct {
	quotaService     *service.QuotaService
	requestService   *service.QuotaRequestService
	transferService  *service.QuotaHolderService
	reconciler       *service.ReconcilerService
	policyRepo       policyStore
	defaultZone      string
	defaultAllocated float64
	defaultUnit      string
}

func NewQuotaHandler(
	quotaService *service.QuotaService,
	requestService *service.QuotaRequestService,
	transferService *service.QuotaHolderService,
	reconciler *service.ReconcilerService,
	policyRepo policyStore,
	defaultZone string,
	defaultAllocated float64,
	defaultUnit string,
) *QuotaHandler {
	return &QuotaHandler{
		quotaService:     quotaService,
		requestService:   requestService,
		transferService:  transferService,
		reconciler:       reconciler,
		policyRepo:       policyRepo,
		defaultZone:      defaultZone,
		defaultAllocated: defaultAllocated,
		defaultUnit:      defaultUnit,
	}
}

// CreateQuotaRecord заводит запись квоты при создании аккаунта.
// Пустые поля берутся из выделения по умолчанию.
func (h *QuotaHandler) CreateQuotaRecord(w http.ResponseWriter, r *http.Request) {
	// В реальном приложении здесь должна быть проверка прав администратора
	var req struct {
		UserID         string  `json:"user_id"`
		Zone           string  `json:"zone"`
		AllocatedValue float64 `json:"allocated_value"`
		AllocatedUnit  string  `json:"allocated_unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if req.Zone == "" {
		req.Zone = h.defaultZone
	}
	if req.AllocatedValue <= 0 {
		req.AllocatedValue = h.defaultAllocated
	}
	if req.AllocatedUnit == "" {
		req.AllocatedUnit = h.defaultUnit
	}

	record, err := h.quotaService.ProvisionRecord(r.Context(), req.UserID, req.Zone, req.AllocatedValue, req.AllocatedUnit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// GetQuotaStatus возвращает состояние квоты текущего пользователя в зоне
func (h *QuotaHandler) GetQuotaStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		zone = h.defaultZone
	}

	info, err := h.quotaService.GetQuotaStatus(r.Context(), userID, zone)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			http.Error(w, "No quota record for this zone", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, info)
}

// ValidateQuota — предварительная проверка перед операцией, занимающей место
func (h *QuotaHandler) ValidateQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SizeBytes int64  `json:"size_bytes"`
		Zone      string `json:"zone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Zone == "" {
		req.Zone = h.defaultZone
	}

	if err := h.quotaService.ValidateQuotaZone(r.Context(), userID, req.Zone, req.SizeBytes); err != nil {
		writeQuotaError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UpdateQuotaLimit — эндпоинт для админа для изменения квоты пользователя
func (h *QuotaHandler) UpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	// В реальном приложении здесь должна быть проверка прав администратора
	var req struct {
		UserID   string  `json:"user_id"`
		Zone     string  `json:"zone"`
		NewLimit float64 `json:"new_limit"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Zone == "" {
		req.Zone = h.defaultZone
	}

	if err := h.quotaService.SetAllocation(r.Context(), req.UserID, req.Zone, req.NewLimit); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *QuotaHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyRepo.Get(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, policy)
}

// UpdatePolicy перезаписывает глобальную политику; применяется со
// следующей оценки, без перезапуска
func (h *QuotaHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	// В реальном приложении здесь должна быть проверка прав администратора
	var policy domain.QuotaPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.policyRepo.Update(r.Context(), &policy); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// SubmitRequest создаёт заявку на увеличение квоты
func (h *QuotaHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Zone              string  `json:"zone"`
		RequestedIncrease float64 `json:"requested_increase"`
		Justification     string  `json:"justification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Zone == "" {
		req.Zone = h.defaultZone
	}

	request, err := h.requestService.Submit(r.Context(), userID, req.Zone, req.RequestedIncrease, req.Justification)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			http.Error(w, "No quota record for this zone", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

func (h *QuotaHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.requestService.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, requests)
}

func (h *QuotaHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, domain.RequestApproved)
}

func (h *QuotaHandler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, domain.RequestDenied)
}

func (h *QuotaHandler) RevokeRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, domain.RequestRevoked)
}

func (h *QuotaHandler) resolveRequest(w http.ResponseWriter, r *http.Request, status domain.RequestStatus) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid request id", http.StatusBadRequest)
		return
	}

	switch status {
	case domain.RequestApproved:
		// В реальном приложении здесь должна быть проверка прав администратора
		err = h.requestService.Approve(r.Context(), id, userID)
	case domain.RequestDenied:
		err = h.requestService.Deny(r.Context(), id, userID)
	case domain.RequestRevoked:
		err = h.requestService.Revoke(r.Context(), id, userID)
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestResolved):
			http.Error(w, "Quota request already resolved", http.StatusConflict)
		case errors.Is(err, domain.ErrPermissionDenied):
			http.Error(w, "Permission denied", http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// TransferQuotaHolder передаёт держателя квоты другому владельцу ресурса
func (h *QuotaHandler) TransferQuotaHolder(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	resourceUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		http.Error(w, "Invalid resource UUID", http.StatusBadRequest)
		return
	}

	var req struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = h.transferService.TransferQuotaHolder(r.Context(), resourceUUID, userID, req.NewOwnerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrResourceNotFound):
			http.Error(w, "Resource not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrPermissionDenied):
			http.Error(w, "Permission denied", http.StatusForbidden)
		default:
			writeQuotaError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Reconcile — точка входа для внешнего планировщика
func (h *QuotaHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.Reconcile(r.Context()); err != nil {
		log.Printf("[QuotaHandler] reconciliation failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeQuotaError(w http.ResponseWriter, err error) {
	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		http.Error(w, quotaErr.Message, http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
