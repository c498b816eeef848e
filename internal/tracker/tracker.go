// Package tracker is a thin client for the external ticket tracker's REST API.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/atuld8/opskit/internal/config"
	"github.com/atuld8/opskit/internal/model"
)

// User is a tracker-side user record, used by the populator.
type User struct {
	Name        string `json:"name"`
	Email       string `json:"emailAddress"`
	DisplayName string `json:"displayName"`
}

// Client issues authenticated requests against the tracker. All calls are
// synchronous and bounded by the configured timeout.
type Client struct {
	http      *resty.Client
	batchSize int
	log       zerolog.Logger
}

// NewClient builds a Client from the tracker section of cfg.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	c := resty.New().
		SetBaseURL(cfg.TrackerURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(time.Duration(cfg.TrackerTimeoutSeconds) * time.Second)
	if cfg.TrackerToken != "" {
		c.SetAuthToken(cfg.TrackerToken)
	}
	return &Client{http: c, batchSize: cfg.TrackerBatchSize, log: log}
}

type issueFields struct {
	Assignee *struct {
		Name string `json:"name"`
	} `json:"assignee"`
}

type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type searchResponse struct {
	Issues []issue `json:"issues"`
}

// GetAssignee fetches the current assignee of one ticket. Returns
// model.ErrNotFound for unknown tickets and "" for unassigned ones.
func (c *Client) GetAssignee(ctx context.Context, ticketID string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("fields", "assignee").
		Get("/rest/api/2/issue/" + ticketID)
	if err != nil {
		return "", fmt.Errorf("tracker request for %s: %w", ticketID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", fmt.Errorf("ticket %s: %w", ticketID, model.ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("tracker status %d for %s: %s", resp.StatusCode(), ticketID, resp.String())
	}
	var is issue
	if err := json.Unmarshal(resp.Body(), &is); err != nil {
		return "", fmt.Errorf("decode issue %s: %w", ticketID, err)
	}
	if is.Fields.Assignee == nil {
		return "", nil
	}
	return is.Fields.Assignee.Name, nil
}

// GetAssignees resolves many tickets with ceil(N/batch) search requests
// instead of N individual fetches. The returned map's key set always equals
// the deduplicated input set; tickets the tracker does not know, and tickets
// lost to request failures, map to nil. Individual fetches are used only as a
// fallback when a batch request itself fails.
func (c *Client) GetAssignees(ctx context.Context, ticketIDs []string) map[string]*string {
	out := make(map[string]*string, len(ticketIDs))
	var unique []string
	for _, id := range ticketIDs {
		if id == "" {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}
		out[id] = nil
		unique = append(unique, id)
	}

	for start := 0; start < len(unique); start += c.batchSize {
		end := start + c.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]
		if err := c.searchAssignees(ctx, chunk, out); err != nil {
			c.log.Warn().Err(err).Int("tickets", len(chunk)).Msg("batch assignee search failed, falling back to individual fetches")
			c.fetchIndividually(ctx, chunk, out)
		}
	}
	return out
}

func (c *Client) searchAssignees(ctx context.Context, chunk []string, out map[string]*string) error {
	jql := fmt.Sprintf("key in (%s)", strings.Join(chunk, ", "))
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"jql":        jql,
			"fields":     "assignee",
			"maxResults": fmt.Sprintf("%d", len(chunk)),
		}).
		Get("/rest/api/2/search")
	if err != nil {
		return fmt.Errorf("tracker search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("tracker search status %d: %s", resp.StatusCode(), resp.String())
	}
	var sr searchResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	for _, is := range sr.Issues {
		if _, wanted := out[is.Key]; !wanted {
			continue
		}
		name := ""
		if is.Fields.Assignee != nil {
			name = is.Fields.Assignee.Name
		}
		out[is.Key] = &name
	}
	return nil
}

func (c *Client) fetchIndividually(ctx context.Context, chunk []string, out map[string]*string) {
	for _, id := range chunk {
		name, err := c.GetAssignee(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("ticket", id).Msg("assignee fetch failed")
			continue
		}
		v := name
		out[id] = &v
	}
}

// GetUser looks up a tracker user by account name.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("username", username).
		Get("/rest/api/2/user")
	if err != nil {
		return nil, fmt.Errorf("tracker user request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("tracker user %s: %w", username, model.ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("tracker user status %d: %s", resp.StatusCode(), resp.String())
	}
	var u User
	if err := json.Unmarshal(resp.Body(), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}
