package domain

import "time"

// QuotaStatus — статус аккаунта относительно квоты
type QuotaStatus string

const (
	StatusOK       QuotaStatus = "ok"
	StatusWarning  QuotaStatus = "warning"
	StatusGrace    QuotaStatus = "grace"
	StatusEnforced QuotaStatus = "enforced"
)

// QuotaRecord представляет выделенную квоту пользователя в конкретной зоне хранения.
// Для пары (user_id, zone) существует не более одной записи.
type QuotaRecord struct {
	ID              int64       `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	Zone            string      `json:"zone" db:"zone"`
	AllocatedValue  float64     `json:"allocated_value" db:"allocated_value"`
	AllocatedUnit   string      `json:"allocated_unit" db:"allocated_unit"`
	UsedValue       float64     `json:"used_value" db:"used_value"`
	GracePeriodEnds *time.Time  `json:"grace_period_ends" db:"grace_period_ends"`
	Status          QuotaStatus `json:"status" db:"status"`
	UploadDisabled  bool        `json:"upload_disabled" db:"upload_disabled"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// QuotaStatusInfo — ответ для getQuotaStatus
type QuotaStatusInfo struct {
	Allocated       float64     `json:"allocated"`
	Used            float64     `json:"used"`
	Unit            string      `json:"unit"`
	Zone            string      `json:"zone"`
	Status          QuotaStatus `json:"status"`
	GracePeriodEnds *time.Time  `json:"grace_period_ends"`
}

// Единицы измерения объёма. Бинарные, как и лимиты synxrondrive.
const (
	UnitBytes = "bytes"
	UnitKB    = "KB"
	UnitMB    = "MB"
	UnitGB    = "GB"
	UnitTB    = "TB"
)

var unitSizes = map[string]float64{
	UnitBytes: 1,
	UnitKB:    1 << 10,
	UnitMB:    1 << 20,
	UnitGB:    1 << 30,
	UnitTB:    1 << 40,
}

// UnitSize возвращает количество байт в единице измерения.
// Неизвестная единица трактуется как байты.
func UnitSize(unit string) float64 {
	if size, ok := unitSizes[unit]; ok {
		return size
	}
	return 1
}

// BytesToUnit переводит количество байт в указанную единицу
func BytesToUnit(bytes int64, unit string) float64 {
	return float64(bytes) / UnitSize(unit)
}
