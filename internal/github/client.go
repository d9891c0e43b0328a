// Package github is a minimal GitHub REST client covering the four
// idempotent operations the orchestrator needs: fetch issues by label,
// add a label, remove a label, and comment on an issue.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// DefaultClientTimeout bounds every API request.
const DefaultClientTimeout = 15 * time.Second

// Issue is the subset of the GitHub issue payload the orchestrator
// consumes. Labels are flattened to their names.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels"`
	State     string   `json:"state"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// ghIssue mirrors the fields we care about from GitHub's JSON.
type ghIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	// Present only when the "issue" is actually a pull request.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Client talks to a single repository via the GitHub REST API.
type Client struct {
	token      string
	repo       string // "owner/repo"
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for one repository. The token is sent as
// a bearer credential on every request.
func NewClient(token, repo string) (*Client, error) {
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q, want owner/repo", repo)
	}
	return &Client{
		token:   token,
		repo:    repo,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}, nil
}

// Repo returns the "owner/repo" identifier this client is bound to.
func (c *Client) Repo() string {
	return c.repo
}

// SetBaseURL overrides the API endpoint. Used for GitHub Enterprise
// hosts and test servers.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// FetchIssues returns open issues carrying all of the given labels.
// Pull requests, which GitHub's issues endpoint also returns, are
// filtered out.
func (c *Client) FetchIssues(ctx context.Context, labels []string, state string) ([]Issue, error) {
	if state == "" {
		state = "open"
	}

	q := url.Values{}
	q.Set("state", state)
	q.Set("per_page", "100")
	if len(labels) > 0 {
		q.Set("labels", strings.Join(labels, ","))
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues?%s", c.baseURL, c.repo, q.Encode())

	var raw []ghIssue
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch issues for %s: %w", c.repo, err)
	}

	issues := make([]Issue, 0, len(raw))
	for _, gi := range raw {
		if gi.PullRequest != nil {
			continue
		}
		names := make([]string, 0, len(gi.Labels))
		for _, l := range gi.Labels {
			names = append(names, l.Name)
		}
		issues = append(issues, Issue{
			Number:    gi.Number,
			Title:     gi.Title,
			Body:      gi.Body,
			Labels:    names,
			State:     gi.State,
			CreatedAt: gi.CreatedAt,
			UpdatedAt: gi.UpdatedAt,
		})
	}
	return issues, nil
}

// AddLabel attaches a label to an issue.
func (c *Client) AddLabel(ctx context.Context, issueNumber int, label string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, c.repo, issueNumber)
	payload := map[string][]string{"labels": {label}}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		return fmt.Errorf("add label %q to %s#%d: %w", label, c.repo, issueNumber, err)
	}
	return nil
}

// RemoveLabel detaches a label from an issue. A 404 for the label is
// not an error: the desired state already holds.
func (c *Client) RemoveLabel(ctx context.Context, issueNumber int, label string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/issues/%d/labels/%s", c.baseURL, c.repo, issueNumber, url.PathEscape(label))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("remove label %q from %s#%d: %w", label, c.repo, issueNumber, err)
	}
	return nil
}

// AddComment posts a comment on an issue.
func (c *Client) AddComment(ctx context.Context, issueNumber int, body string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, c.repo, issueNumber)
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		return fmt.Errorf("comment on %s#%d: %w", c.repo, issueNumber, err)
	}
	return nil
}

// apiError carries the HTTP status so callers can special-case 404s.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github API error (%d): %s", e.status, e.body)
}

func isNotFound(err error) bool {
	ae, ok := err.(*apiError)
	return ok && ae.status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
