package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

const contentPath = "/v1/content/{id}"

// HTTPClient ходит в каталог по HTTP: GET /v1/content/{id} → {"id", "status"}.
type HTTPClient struct {
	client *resty.Client
}

var _ Catalog = (*HTTPClient)(nil)

// NewHTTPClient создаёт клиента с таймаутом на запрос.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         timeout,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPClient{client: client}
}

// Close закрывает транспорт.
func (c *HTTPClient) Close() error {
	return c.client.Close()
}

// GetContent запрашивает контент. 404 — ErrContentNotFound,
// остальные ошибки транспорта и 5xx — ErrCatalogUnavailable.
func (c *HTTPClient) GetContent(ctx context.Context, id string) (*Content, error) {
	res, err := c.client.R().
		WithContext(ctx).
		SetPathParam("id", id).
		SetResult(&Content{}).
		Get(contentPath)
	if err != nil {
		metrics.CatalogLookupTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", common.ErrCatalogUnavailable, err)
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", common.ErrContentNotFound, id)
	case res.IsError():
		metrics.CatalogLookupTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: статус %d", common.ErrCatalogUnavailable, res.StatusCode())
	}

	content, ok := res.Result().(*Content)
	if !ok || content == nil || content.Status == "" {
		return nil, fmt.Errorf("%w: пустой ответ для %s", common.ErrCatalogUnavailable, id)
	}
	if content.ID == "" {
		content.ID = id
	}
	return content, nil
}
