// auth/client.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"synxronquota/internal/domain"
)

// Client — HTTP-клиент внутреннего API сервиса аутентификации.
// Сервис квот через него резолвит идентификаторы, получает список
// аккаунтов для сверки и переключает возможность загрузки.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL: cfg.AuthAddr,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Resolve переводит идентификатор (id, email) в id существующего аккаунта.
// 404 означает, что аккаунта нет: это не ошибка, решение за вызывающим.
func (c *Client) Resolve(ctx context.Context, identity string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/internal/v1/users/resolve?identity=%s",
		c.baseURL, url.QueryEscape(identity))

	var user struct {
		ID string `json:"id"`
	}

	status, err := c.getJSON(ctx, endpoint, &user)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status != http.StatusOK {
		return "", false, fmt.Errorf("auth service returned status %d", status)
	}

	return user.ID, true, nil
}

// ListActiveAccounts возвращает все аккаунты; фильтрация по active/admin
// остаётся на вызывающем
func (c *Client) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	endpoint := fmt.Sprintf("%s/internal/v1/users", c.baseURL)

	var response struct {
		Users []domain.Account `json:"users"`
	}

	status, err := c.getJSON(ctx, endpoint, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("auth service returned status %d", status)
	}

	return response.Users, nil
}

// SetUploadEnabled включает или выключает возможность загрузки для аккаунта
func (c *Client) SetUploadEnabled(ctx context.Context, userID string, enabled bool) error {
	endpoint := fmt.Sprintf("%s/internal/v1/users/%s/upload", c.baseURL, url.PathEscape(userID))

	body, err := json.Marshal(map[string]bool{"enabled": enabled})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
