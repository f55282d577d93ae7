package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus — статус заявки на увеличение квоты
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
	RequestRevoked  RequestStatus = "revoked"
)

// QuotaRequest — заявка пользователя на увеличение выделенной квоты.
// Создаётся в статусе pending и переводится административным действием
// ровно один раз в approved, denied или revoked.
type QuotaRequest struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	UserID             string        `json:"user_id" db:"user_id"`
	RecordID           int64         `json:"record_id" db:"record_id"`
	RequestedIncrease  float64       `json:"requested_increase" db:"requested_increase"`
	Justification      string        `json:"justification" db:"justification"`
	Status             RequestStatus `json:"status" db:"status"`
	RequestedAt        time.Time     `json:"requested_at" db:"requested_at"`
	ResolvedAt         *time.Time    `json:"resolved_at" db:"resolved_at"`
	ResolvedBy         *string       `json:"resolved_by" db:"resolved_by"`
}
