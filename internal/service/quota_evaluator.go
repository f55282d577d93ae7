package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"synxronquota/internal/domain"
)

// Evaluation — результат чистой оценки записи квоты против политики
type Evaluation struct {
	Status    domain.QuotaStatus
	Projected float64 // прогнозное использование в единицах записи
	Percent   float64
	Message   string
}

// EvaluateQuota сопоставляет запись, политику и ожидаемую дельту со статусом
// и готовым сообщением. Функция чистая: запись не изменяется, побочных
// эффектов нет. Отрицательная дельта трактуется как ноль.
func EvaluateQuota(record *domain.QuotaRecord, policy *domain.QuotaPolicy, pendingDeltaBytes int64) Evaluation {
	if pendingDeltaBytes < 0 {
		pendingDeltaBytes = 0
	}

	deltaInUnit := domain.BytesToUnit(pendingDeltaBytes, record.AllocatedUnit)
	projected := record.UsedValue + deltaInUnit
	percent := projected * 100 / record.AllocatedValue

	var status domain.QuotaStatus
	switch {
	case percent < policy.SoftLimitPercent:
		status = domain.StatusOK
	case percent < 100:
		status = domain.StatusWarning
	case percent < policy.HardLimitPercent:
		// Активен ли льготный период, определяет машина состояний
		// по grace_period_ends, а не оценка
		status = domain.StatusGrace
	default:
		status = domain.StatusEnforced
	}

	return Evaluation{
		Status:    status,
		Projected: projected,
		Percent:   percent,
		Message:   formatQuotaMessage(record, policy, status, projected, percent),
	}
}

// EffectiveStatus возвращает статус записи с учётом ленивой проверки
// льготного периода: таймера нет, истёкший grace_period_ends превращается
// в enforcement в момент чтения.
func EffectiveStatus(record *domain.QuotaRecord, policy *domain.QuotaPolicy, now time.Time) domain.QuotaStatus {
	eval := EvaluateQuota(record, policy, 0)

	if eval.Status == domain.StatusGrace &&
		record.GracePeriodEnds != nil && record.GracePeriodEnds.Before(now) {
		return domain.StatusEnforced
	}

	return eval.Status
}

// formatQuotaMessage подставляет значения в шаблон политики. Набор
// плейсхолдеров стабилен, внешние потребители разбирают его дословно:
// {used} {unit} {allocated} {zone} {percent} {cut_off_date}
func formatQuotaMessage(record *domain.QuotaRecord, policy *domain.QuotaPolicy, status domain.QuotaStatus, projected, percent float64) string {
	cutOffDate := ""
	if record.GracePeriodEnds != nil {
		cutOffDate = record.GracePeriodEnds.Format("2006-01-02")
	}

	replacer := strings.NewReplacer(
		"{used}", formatRounded(projected, 4),
		"{unit}", record.AllocatedUnit,
		"{allocated}", formatRounded(record.AllocatedValue, 4),
		"{zone}", record.Zone,
		"{percent}", formatRounded(percent, 2),
		"{cut_off_date}", cutOffDate,
	)

	return replacer.Replace(policy.Template(status))
}

// formatRounded округляет до фиксированного числа знаков и отбрасывает
// хвостовые нули: 50 -> "50", 80.5 -> "80.5", 110.254 -> "110.25"
func formatRounded(v float64, decimals int) string {
	pow := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Round(v*pow)/pow, 'f', -1, 64)
}
