package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

var gClient *Client

func InitClient(client *Client) {
	gClient = client
}

// VerifyToken проверяет токен входящего запроса через сервис
// аутентификации и возвращает id пользователя
func VerifyToken(r *http.Request) (string, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}

	endpoint := fmt.Sprintf("%s/internal/v1/user", gClient.baseURL)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authToken)

	resp, err := gClient.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var response struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return response.User.ID, nil
}
