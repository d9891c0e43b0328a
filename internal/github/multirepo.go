package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// RepoIssue pairs an issue with the repository it came from.
type RepoIssue struct {
	Repository string
	Issue      Issue
}

// MultiRepo fans the four issue-tracker operations out across the
// configured repositories, one client per repository.
type MultiRepo struct {
	repos   []string // preserves configuration order
	clients map[string]*Client
	log     zerolog.Logger
}

// NewMultiRepo builds a client per configured "owner/repo" entry.
// Invalid entries are skipped with a log line; at least one valid
// repository is required.
func NewMultiRepo(token string, repositories []string, log zerolog.Logger) (*MultiRepo, error) {
	m := &MultiRepo{
		clients: make(map[string]*Client),
		log:     log,
	}

	for _, repo := range repositories {
		repo = strings.TrimSpace(repo)
		if repo == "" {
			continue
		}
		client, err := NewClient(token, repo)
		if err != nil {
			log.Error().Err(err).Str("repository", repo).Msg("skipping repository")
			continue
		}
		m.clients[repo] = client
		m.repos = append(m.repos, repo)
		log.Info().Str("repository", repo).Msg("initialized GitHub client")
	}

	if len(m.clients) == 0 {
		return nil, fmt.Errorf("no valid repositories configured")
	}
	return m, nil
}

// Repositories returns the configured repositories in order.
func (m *MultiRepo) Repositories() []string {
	return append([]string(nil), m.repos...)
}

// Client returns the client for a repository, or nil if unconfigured.
func (m *MultiRepo) Client(repo string) *Client {
	return m.clients[repo]
}

// SetBaseURL points every client at the given API endpoint.
func (m *MultiRepo) SetBaseURL(u string) {
	for _, c := range m.clients {
		c.SetBaseURL(u)
	}
}

// FetchIssues fetches open issues with the given labels for one
// repository.
func (m *MultiRepo) FetchIssues(ctx context.Context, repo string, labels []string) ([]Issue, error) {
	client := m.clients[repo]
	if client == nil {
		return nil, fmt.Errorf("no client for repository %s", repo)
	}
	return client.FetchIssues(ctx, labels, "open")
}

// FetchAll fetches labeled open issues across every repository. A
// failure in one repository is logged and does not abort the others.
func (m *MultiRepo) FetchAll(ctx context.Context, labels []string) []RepoIssue {
	var all []RepoIssue
	for _, repo := range m.repos {
		issues, err := m.clients[repo].FetchIssues(ctx, labels, "open")
		if err != nil {
			m.log.Error().Err(err).Str("repository", repo).Msg("failed to fetch issues")
			continue
		}
		for _, issue := range issues {
			all = append(all, RepoIssue{Repository: repo, Issue: issue})
		}
	}
	return all
}

// AddLabel adds a label to an issue in the given repository.
func (m *MultiRepo) AddLabel(ctx context.Context, repo string, issueNumber int, label string) error {
	client := m.clients[repo]
	if client == nil {
		return fmt.Errorf("no client for repository %s", repo)
	}
	return client.AddLabel(ctx, issueNumber, label)
}

// RemoveLabel removes a label from an issue in the given repository.
func (m *MultiRepo) RemoveLabel(ctx context.Context, repo string, issueNumber int, label string) error {
	client := m.clients[repo]
	if client == nil {
		return fmt.Errorf("no client for repository %s", repo)
	}
	return client.RemoveLabel(ctx, issueNumber, label)
}

// AddComment comments on an issue in the given repository.
func (m *MultiRepo) AddComment(ctx context.Context, repo string, issueNumber int, body string) error {
	client := m.clients[repo]
	if client == nil {
		return fmt.Errorf("no client for repository %s", repo)
	}
	return client.AddComment(ctx, issueNumber, body)
}
