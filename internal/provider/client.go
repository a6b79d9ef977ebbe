package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
)

const searchPath = "/v1/people/search"

// Client is an HTTP Searcher against the lead-data provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a provider client with the given request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type searchRequest struct {
	Filters
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type searchResponse struct {
	People     []Record `json:"people"`
	Pagination struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

// SearchLeads fetches one result page. Transport and HTTP failures are
// classified into the domain taxonomy: 429 -> ErrRateLimited, 5xx ->
// ErrProviderServer, other 4xx -> ErrProviderClient, timeouts -> ErrTimeout.
func (c *Client) SearchLeads(ctx context.Context, filters Filters, page, perPage int) (*Page, error) {
	body, err := json.Marshal(searchRequest{Filters: filters, Page: page, PerPage: perPage})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrTimeout, page, err)
		}
		return nil, fmt.Errorf("%w: page %d: %v", domain.ErrProviderServer, page, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, page); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode page %d: %v", domain.ErrProviderServer, page, err)
	}

	c.logger.Debug("provider page fetched",
		logger.Int("page", page),
		logger.Int("records", len(out.People)),
	)

	return &Page{
		Records: out.People,
		HasMore: out.Pagination.Page < out.Pagination.TotalPages,
	}, nil
}

func classifyStatus(status, page int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: page %d", domain.ErrRateLimited, page)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: page %d: status %d", domain.ErrProviderServer, page, status)
	default:
		return fmt.Errorf("%w: page %d: status %d", domain.ErrProviderClient, page, status)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
