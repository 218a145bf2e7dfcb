// Package remote implements the replay client against the shop's backend
// API. Replays are PUT keyed by the client-generated record id, so the
// endpoint can deduplicate a retried record by upserting.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client talks to the remote replay endpoint over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL. The timeout bounds each
// replay call; the sync subsystem itself carries no cancellation of its own.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ReplaySale replays a pending sale against the backend.
func (c *Client) ReplaySale(ctx context.Context, sale *models.PendingSale) error {
	return c.put(ctx, fmt.Sprintf("/sales/%s", sale.ID), sale)
}

// ReplayInventory replays a pending inventory update against the backend.
func (c *Client) ReplayInventory(ctx context.Context, update *models.PendingInventoryUpdate) error {
	return c.put(ctx, fmt.Sprintf("/inventory/%s", update.ID), update)
}

func (c *Client) put(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteReplayFailed, "replay request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperrors.Newf(apperrors.ErrRemoteReplayFailed,
		"replay rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
