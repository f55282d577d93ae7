package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"synxronquota/internal/domain"
)

// Notifier доставляет пользователю сообщение о смене статуса квоты.
// Доставка — побочный эффект перехода состояния: её сбой логируется
// вызывающим и не влияет на учёт.
type Notifier interface {
	Notify(ctx context.Context, userID string, status domain.QuotaStatus, message string) error
}

// WebhookNotifier отправляет уведомления во внешний сервис рассылки
// (почта, пуши — на его усмотрение)
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(cfg *Config) *WebhookNotifier {
	return &WebhookNotifier{
		url: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID string, status domain.QuotaStatus, message string) error {
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"status":  string(status),
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier пишет уведомления в лог. Используется, когда webhook
// не настроен.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, status domain.QuotaStatus, message string) error {
	log.Printf("[Notify] user %s status %s: %s", userID, status, message)
	return nil
}
