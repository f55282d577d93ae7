package domain

import "errors"

// QuotaExceededError возвращается шлюзом проверки квоты, когда операция
// привела бы к превышению лимита. Message — готовое сообщение для
// пользователя, собранное из шаблона политики.
type QuotaExceededError struct {
	Message string
}

func (e *QuotaExceededError) Error() string {
	return e.Message
}

// Ошибки уровня домена
var (
	// ErrPermissionDenied — инициатор или новый держатель квоты не является
	// владельцем ресурса
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRequestResolved — заявка уже переведена в конечный статус
	ErrRequestResolved = errors.New("quota request already resolved")

	// ErrResourceNotFound — ресурс не найден
	ErrResourceNotFound = errors.New("resource not found")

	// ErrRecordNotFound — у пользователя нет записи квоты в зоне
	ErrRecordNotFound = errors.New("quota record not found")
)
