package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leadforge/pipeline/internal/logger"
)

// Client appends rows through the spreadsheet gateway service, which owns
// the OAuth credential handling.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a sheet client.
func NewClient(baseURL, token string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type appendRequest struct {
	Rows [][]string `json:"rows"`
}

// AppendRows appends one page's rows to the sheet. Any failure is wrapped
// with domain.ErrSheetWrite.
func (c *Client) AppendRows(ctx context.Context, sheetID string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(appendRequest{Rows: rows})
	if err != nil {
		return WriteError(sheetID, fmt.Errorf("marshal rows: %w", err))
	}

	url := fmt.Sprintf("%s/v1/sheets/%s/rows", c.baseURL, sheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return WriteError(sheetID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WriteError(sheetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return WriteError(sheetID, fmt.Errorf("status %d", resp.StatusCode))
	}

	c.logger.Debug("rows appended",
		logger.String("sheet_id", sheetID),
		logger.Int("rows", len(rows)),
	)
	return nil
}
