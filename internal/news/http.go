package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/openbench/tradearena/internal/rpc"
)

// HTTPProvider pulls headlines from an external news service. Requests
// pass through the shared call gate and the news circuit breaker, same
// as every other live upstream.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	gate    *rpc.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a provider against baseURL. The service is
// expected to answer GET {baseURL}?symbol=X with a JSON array of items.
func NewHTTPProvider(baseURL string, gate *rpc.Client, breaker *gobreaker.CircuitBreaker) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		gate:    gate,
		breaker: breaker,
	}
}

// Fetch retrieves headlines for one symbol. Transient upstream
// failures are retried by the gate; an open breaker and 4xx responses
// fail fast.
func (p *HTTPProvider) Fetch(ctx context.Context, symbol string) ([]Item, error) {
	return rpc.Do(ctx, p.gate, "news_fetch", func(ctx context.Context) ([]Item, error) {
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.fetch(ctx, symbol)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, rpc.Permanent(fmt.Errorf("news breaker: %w", err))
			}
			return nil, err
		}
		return out.([]Item), nil
	})
}

func (p *HTTPProvider) fetch(ctx context.Context, symbol string) ([]Item, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, rpc.Permanent(fmt.Errorf("news url: %w", err))
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, rpc.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("news service returned %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, rpc.Permanent(err)
		}
		return nil, err
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	return items, nil
}
