package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"fieldsync/internal/app/client/config"
	"fieldsync/internal/domain/claim"
	"fieldsync/internal/domain/mutation"
)

var (
	// ErrOffline - сервер недоступен: сеть, таймаут или 5xx. Не фатально.
	ErrOffline = errors.New("сервер недоступен")
	// ErrUnauthenticated - токен отсутствует или истек (401).
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden - роль не допускает операцию (403).
	ErrForbidden = errors.New("операция запрещена для роли пользователя")
)

// Transport - обращения агента к серверу
type Transport interface {
	SubmitBatch(ctx context.Context, mutations []mutation.Mutation) ([]mutation.Outcome, error)
	HealthCheck(ctx context.Context) error
	Claim(ctx context.Context, taskID string) (claim.Result, error)
	Release(ctx context.Context, taskID string) (bool, error)
	GetClaim(ctx context.Context, taskID string) (*ClaimState, error)
}

// ClaimState - состояние аренды задачи на сервере
type ClaimState struct {
	Claimed   bool       `json:"claimed"`
	HolderID  string     `json:"holder_id,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	userAgent string

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: cfg.SyncTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	// Определяем протокол
	scheme := "http://"
	if cfg.EnableTLS {
		scheme = "https://"
	}

	return &httpClient{
		client:    client,
		log:       log.With("component", "http_client"),
		baseURL:   scheme + cfg.ServerAddress,
		userAgent: "Fieldsync-Client/1.0",
	}
}

// SetToken устанавливает токен аутентификации
func (h *httpClient) SetToken(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *httpClient) getToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// HealthCheck проверяет доступность сервера
func (h *httpClient) HealthCheck(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

// SubmitBatch отправляет пакет и возвращает результаты в порядке мутаций.
func (h *httpClient) SubmitBatch(ctx context.Context, mutations []mutation.Mutation) ([]mutation.Outcome, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/v1/sync/batch", struct {
		Mutations []mutation.Mutation `json:"mutations"`
	}{Mutations: mutations})
	if err != nil {
		return nil, err
	}

	var out struct {
		Outcomes []mutation.Outcome `json:"outcomes"`
	}
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Outcomes, nil
}

func (h *httpClient) Claim(ctx context.Context, taskID string) (claim.Result, error) {
	var res claim.Result

	resp, err := h.doRequest(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(taskID)+"/claim", nil)
	if err != nil {
		return res, err
	}
	err = h.parseResponse(resp, &res)
	return res, err
}

func (h *httpClient) Release(ctx context.Context, taskID string) (bool, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(taskID)+"/release", nil)
	if err != nil {
		return false, err
	}

	var out struct {
		Released bool `json:"released"`
	}
	if err := h.parseResponse(resp, &out); err != nil {
		return false, err
	}
	return out.Released, nil
}

func (h *httpClient) GetClaim(ctx context.Context, taskID string) (*ClaimState, error) {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID)+"/claim", nil)
	if err != nil {
		return nil, err
	}

	var state ClaimState
	if err := h.parseResponse(resp, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	// Добавляем заголовки
	req.Header.Set("User-Agent", h.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := h.getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	h.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		// сеть, DNS, таймаут или отмена контекста
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}

	return resp, nil
}

func (h *httpClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: ошибка чтения ответа: %v", ErrOffline, err)
	}

	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"size", len(body),
	)

	if resp.StatusCode >= 400 {
		var problem struct {
			Detail string `json:"detail"`
		}
		detail := fmt.Sprintf("статус %d", resp.StatusCode)
		if err := json.Unmarshal(body, &problem); err == nil && problem.Detail != "" {
			detail = problem.Detail
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthenticated, detail)
		case resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, detail)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrOffline, detail)
		default:
			return fmt.Errorf("ошибка сервера: %s", detail)
		}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}
