// Package github is a minimal GitHub REST client for the issue-thread
// surfaces the engine touches: posting bid receipts, striking out the
// comments of unlinked bidders, and reading owner reactions.
//
// Without a token the client is disabled: mutations return ErrDisabled and
// callers log and move on. Bidding state never depends on a comment write
// succeeding.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/bidme/bidme/internal/retry"
)

// EnvToken is the environment variable carrying the API token.
const EnvToken = "GITHUB_TOKEN"

const apiBaseURL = "https://api.github.com"

// ErrDisabled is returned by mutating calls when no token is configured.
var ErrDisabled = errors.New("github client disabled: " + EnvToken + " not set")

// Client talks to the GitHub REST API for one repository.
type Client struct {
	token      string
	repo       string // "owner/name"
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates a client for the given repository. An empty token yields a
// disabled client.
func New(token, repo string, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		repo:       repo,
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: 2 * time.Second,
		logger:     logger,
	}
}

// NewFromEnv creates a client using GITHUB_TOKEN. A missing token logs a
// warning once, at construction.
func NewFromEnv(repo string, logger *slog.Logger) *Client {
	token := os.Getenv(EnvToken)
	if token == "" {
		logger.Warn("github client disabled", "missing", EnvToken)
	}
	return New(token, repo, logger)
}

// Enabled reports whether the client holds a token.
func (c *Client) Enabled() bool {
	return c.token != ""
}

// Comment is an issue comment.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// Reaction is one reaction on a comment.
type Reaction struct {
	Content string `json:"content"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, issueNumber int, body string) (*Comment, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var out Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.repo, issueNumber)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetComment fetches one issue comment.
func (c *Client) GetComment(ctx context.Context, commentID int64) (*Comment, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var out Comment
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateComment replaces a comment's body.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil)
}

// ListReactions returns the reactions on a comment.
func (c *Client) ListReactions(ctx context.Context, commentID int64) ([]Reaction, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var out []Reaction
	path := fmt.Sprintf("/repos/%s/issues/comments/%d/reactions", c.repo, commentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StrikethroughComment rewrites a comment with every line struck out, the
// visible mark for an unlinked bidder's bid. Already-struck comments are
// left alone so repeated enforcement runs don't stack markers.
func (c *Client) StrikethroughComment(ctx context.Context, commentID int64) error {
	comment, err := c.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	struck := Strikethrough(comment.Body)
	if struck == comment.Body {
		return nil
	}
	return c.UpdateComment(ctx, commentID, struck)
}

// Strikethrough wraps each non-empty line in markdown strikethrough.
// Idempotent: lines already struck are unchanged.
func Strikethrough(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "~~") && strings.HasSuffix(trimmed, "~~") {
			continue
		}
		lines[i] = "~~" + line + "~~"
	}
	return strings.Join(lines, "\n")
}

// do performs one API call with transport-level retries.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := retry.Do(ctx, func() (*http.Response, error) {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.httpClient.Do(req)
	}, retry.Options{Delay: c.retryDelay})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode body: %w", method, path, err)
	}
	return nil
}

// APIError is a non-2xx GitHub API response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s %s returned %d", e.Method, e.Path, e.Status)
}

// HTTPStatus implements the interface the retry package's rate-limit
// predicate looks for.
func (e *APIError) HTTPStatus() int {
	return e.Status
}
