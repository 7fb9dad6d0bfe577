// Package upstream resolves the head commit of the remote branch before a
// deployment, so history records what a run was expected to pull. Lookups
// are audit only: every caller treats failure as a logged warning.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client queries the GitHub API for branch metadata.
type Client struct {
	gh *github.Client
}

// NewClient creates a client. An empty token yields an unauthenticated
// client, which is sufficient for public repositories.
func NewClient(token string) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &Client{gh: github.NewClient(hc)}
}

// NewClientWithBaseURL creates a client against a non-default API
// endpoint. Used by tests.
func NewClientWithBaseURL(baseURL string) (*Client, error) {
	gh, err := github.NewClient(nil).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure API base URL: %w", err)
	}
	return &Client{gh: gh}, nil
}

// HeadCommit returns the SHA of the head commit of branch in the
// "owner/repo" repository.
func (c *Client) HeadCommit(ctx context.Context, ownerRepo, branch string) (string, error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}

	b, _, err := c.gh.Repositories.GetBranch(ctx, parts[0], parts[1], branch, 1)
	if err != nil {
		return "", fmt.Errorf("fetching branch %s: %w", branch, err)
	}

	if b.Commit == nil || b.Commit.SHA == nil {
		return "", fmt.Errorf("branch %s has no head commit", branch)
	}

	return *b.Commit.SHA, nil
}
