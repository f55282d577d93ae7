package domain

// Account — учётная запись из сервиса аутентификации.
// Сервис квот аккаунтами не владеет, только читает их список при сверке.
type Account struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Admin  bool   `json:"admin"`
}
