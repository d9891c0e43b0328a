package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the dispatch API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health fetches the aggregate daemon state.
func (c *Client) Health() (*HealthSummary, error) {
	var h HealthSummary
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Queue fetches the queue contents grouped by state.
func (c *Client) Queue() ([]QueueRow, error) {
	var snap struct {
		Pending    []QueueRow `json:"pending"`
		InProgress []QueueRow `json:"in_progress"`
		Finished   []QueueRow `json:"finished"`
	}
	if err := c.get("/queue", &snap); err != nil {
		return nil, err
	}

	rows := make([]QueueRow, 0, len(snap.InProgress)+len(snap.Pending)+len(snap.Finished))
	rows = append(rows, snap.InProgress...)
	rows = append(rows, snap.Pending...)
	rows = append(rows, snap.Finished...)
	return rows, nil
}

// Workers fetches all tracked workers.
func (c *Client) Workers() ([]WorkerRow, error) {
	var rows []WorkerRow
	if err := c.get("/workers", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// PendingPRs fetches the pending pull requests awaiting review.
func (c *Client) PendingPRs() ([]PRRow, error) {
	var status struct {
		Pending []PRRow `json:"pending"`
	}
	if err := c.get("/prs", &status); err != nil {
		return nil, err
	}
	return status.Pending, nil
}

// Events fetches recent audit events.
func (c *Client) Events(limit int) ([]EventRow, error) {
	var rows []EventRow
	if err := c.get(fmt.Sprintf("/events?limit=%d", limit), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
