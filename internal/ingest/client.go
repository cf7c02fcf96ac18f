// Package ingest — HTTP-клиент идемпотентного эндпоинта приёма офлайн-заказов.
// Сервер сам пересчитывает суммы по своим справочникам; клиент лишь
// отправляет факты продажи и различает три исхода: принят, конфликт,
// временный сбой.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2jz-code/pos-sync/internal/domain"
)

const (
	ingestPath     = "/api/v1/orders/ingest"
	defaultTimeout = 15 * time.Second
)

// Client отправляет офлайн-заказы на сервер. Реализует domain.IngestClient.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewClient создаёт клиент ingest-эндпоинта. nil httpClient заменяется
// клиентом с таймаутом по умолчанию.
func NewClient(baseURL, authToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		client:    httpClient,
	}
}

// Submit отправляет один офлайн-заказ. Конфликт (409) — это штатный ответ,
// возвращается как IngestResponse со статусом CONFLICT без ошибки; сетевые
// сбои и 5xx возвращаются ошибкой и считаются временными.
func (c *Client) Submit(ctx context.Context, payload domain.IngestPayload) (domain.IngestResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.IngestResponse{}, fmt.Errorf("encode ingest payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ingestPath, bytes.NewReader(body))
	if err != nil {
		return domain.IngestResponse{}, fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.OperationID)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.IngestResponse{}, fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result domain.IngestResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return domain.IngestResponse{}, fmt.Errorf("decode ingest response: %w", err)
		}
		if result.Status == "" {
			result.Status = domain.IngestStatusSuccess
		}
		return result, nil

	case resp.StatusCode == http.StatusConflict:
		var result domain.IngestResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			// Тело нечитаемо, но факт конфликта сервер сообщил статус-кодом.
			return domain.IngestResponse{Status: domain.IngestStatusConflict}, nil
		}
		result.Status = domain.IngestStatusConflict
		return result, nil

	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.IngestResponse{}, fmt.Errorf("ingest returned %s: %s", resp.Status, detail)
	}
}
