package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resource — ресурс, занимающий место в хранилище. Сервис учёта квот хранит
// только срез модели ресурсов: владельцев, держателя квоты и размер,
// по которому считается фактическое использование в зоне home.
// Остальные метаданные живут в файловом сервисе.
type Resource struct {
	UUID          uuid.UUID `json:"uuid" db:"uuid"`
	Name          string    `json:"name" db:"name"`
	Zone          string    `json:"zone" db:"zone"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	Published     bool      `json:"published" db:"published"`
	QuotaHolderID string    `json:"quota_holder_id" db:"quota_holder_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
