package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NoopIndexer используется, когда сервис поиска не настроен
type NoopIndexer struct{}

func (NoopIndexer) Index(_ context.Context, id uuid.UUID, locator string) error {
	log.Debug().Str("file_id", id.String()).Str("locator", locator).Msg("indexing disabled, skipping")
	return nil
}

func (NoopIndexer) DropIndex(_ context.Context, id uuid.UUID) error {
	log.Debug().Str("file_id", id.String()).Msg("indexing disabled, skipping drop")
	return nil
}

// WebhookIndexer сообщает внешнему сервису о сохранённых и удалённых файлах:
// POST {base}/index и DELETE {base}/index/{id}
type WebhookIndexer struct {
	baseURL string
	client  *http.Client
}

func NewWebhookIndexer(baseURL string, timeout time.Duration) *WebhookIndexer {
	return &WebhookIndexer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type indexRequest struct {
	FileID  string `json:"file_id"`
	Locator string `json:"locator"`
}

func (w *WebhookIndexer) Index(ctx context.Context, id uuid.UUID, locator string) error {
	body, err := json.Marshal(indexRequest{FileID: id.String(), Locator: locator})
	if err != nil {
		return fmt.Errorf("failed to encode index request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/index", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return w.do(req)
}

func (w *WebhookIndexer) DropIndex(ctx context.Context, id uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, w.baseURL+"/index/"+id.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build drop request: %w", err)
	}
	return w.do(req)
}

func (w *WebhookIndexer) do(req *http.Request) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 на удалении означает, что записей и так нет
	if req.Method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("indexer %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return nil
}

// NewIndexer выбирает реализацию по конфигурации
func NewIndexer(webhookURL string, timeout time.Duration) Indexer {
	if webhookURL == "" {
		return NoopIndexer{}
	}
	return NewWebhookIndexer(webhookURL, timeout)
}
