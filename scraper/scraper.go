// Package scraper talks to the external post-scraping service. One call
// returns every post of an account newer than a given date; the service is
// slow (an upstream crawl runs per call), so the client waits up to ten
// minutes and never retries on its own.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable marks an outage of the scraping service. The account run
// aborts; retrying is the caller's decision.
var ErrUnavailable = errors.New("scraper unavailable")

const callTimeout = 600 * time.Second

// Post is one scraped post. Only the fields the ingestion pipeline consumes
// are decoded.
type Post struct {
	ShortCode     string      `json:"shortCode"`
	OwnerUsername string      `json:"ownerUsername"`
	Timestamp     time.Time   `json:"timestamp"`
	LikesCount    int         `json:"likesCount"`
	CommentsCount int         `json:"commentsCount"`
	Caption       string      `json:"caption"`
	DisplayURL    string      `json:"displayUrl"`
	Images        []string    `json:"images"`
	ChildPosts    []ChildPost `json:"childPosts"`
	Type          string      `json:"type"`
}

// ChildPost is one entry of a carousel.
type ChildPost struct {
	DisplayURL string   `json:"displayUrl"`
	Images     []string `json:"images"`
}

type runInput struct {
	DirectURLs         []string `json:"directUrls"`
	ResultsType        string   `json:"resultsType"`
	ResultsLimit       int      `json:"resultsLimit"`
	OnlyPostsNewerThan string   `json:"onlyPostsNewerThan,omitempty"`
	AddParentData      bool     `json:"addParentData"`
}

// Client calls the scraping service's run-synchronously endpoint.
type Client struct {
	endpoint    string
	token       string
	profileHost string
	httpClient  *http.Client
}

func NewClient(endpoint, token, profileHost string) *Client {
	return &Client{
		endpoint:    endpoint,
		token:       token,
		profileHost: profileHost,
		httpClient:  &http.Client{Timeout: callTimeout},
	}
}

// FetchPosts returns posts of handle newer than since (zero time means
// unbounded), capped at limit. Posts come back in the service's order and
// the pipeline preserves it.
func (c *Client) FetchPosts(ctx context.Context, handle string, since time.Time, limit int) ([]Post, error) {
	input := runInput{
		DirectURLs:   []string{fmt.Sprintf("https://%s/%s/", c.profileHost, handle)},
		ResultsType:  "posts",
		ResultsLimit: limit,
	}
	if !since.IsZero() {
		input.OnlyPostsNewerThan = since.Format("2006-01-02")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal scraper input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scraper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode scraper response: %w", err)
	}
	return posts, nil
}

// PostLimit derives the per-run post cap from the covered period:
// ten posts a day, floored at 50, capped at 2000. Calibrated to
// active-account post density.
func PostLimit(since, now time.Time) int {
	if since.IsZero() {
		return 200
	}
	days := int(now.Sub(since).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	limit := days * 10
	if limit < 50 {
		limit = 50
	}
	if limit > 2000 {
		limit = 2000
	}
	return limit
}
