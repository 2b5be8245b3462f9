package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/contentloop/crossposter/app/cfg"
)

// Client fetches hot-listing observations from the upstream feed. It
// authorizes with an application-only OAuth password grant and holds the
// access token for the lifetime of one batch.
type Client struct {
	httpClient   *http.Client
	authURL      string
	apiURL       string
	clientID     string
	clientSecret string
	username     string
	password     string
	userAgent    string
}

func NewClient(httpClient *http.Client) *Client {
	c := cfg.Get()

	return &Client{
		httpClient:   httpClient,
		authURL:      c.FeedAuthURL,
		apiURL:       c.FeedAPIURL,
		clientID:     c.FeedClientID,
		clientSecret: c.FeedClientSecret,
		username:     c.FeedUsername,
		password:     c.FeedPassword,
		userAgent:    c.UserAgent,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) Authorize(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	return token.AccessToken, nil
}

// listing mirrors the upstream hot-listing envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data map[string]any `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchHot returns the current hot observations for one upstream community.
// Malformed posts and posts without a capturable still image are skipped
// with a diagnostic; they never fail the batch.
func (c *Client) FetchHot(ctx context.Context, token, source string, limit int) ([]Observation, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot", c.apiURL, source)
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hot listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hot listing returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode hot listing: %w", err)
	}

	observedAt := time.Now().UTC()
	observations := make([]Observation, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		obs, ok := buildObservation(child.Data, source, observedAt)
		if !ok {
			continue
		}
		observations = append(observations, obs)
	}

	return observations, nil
}

func buildObservation(post map[string]any, source string, observedAt time.Time) (Observation, bool) {
	locator, _ := post["url"].(string)
	title, _ := post["title"].(string)
	createdUTC, hasCreated := asFloat(post["created_utc"])

	if locator == "" || title == "" || !hasCreated {
		slog.Warn("Skipping malformed observation", "community", source,
			"locator", locator, "has_title", title != "", "has_created", hasCreated)
		return Observation{}, false
	}

	if !downloadable(post) {
		slog.Debug("Skipping observation without capturable asset", "community", source, "locator", locator)
		return Observation{}, false
	}

	score, _ := asFloat(post["score"])
	comments, _ := asFloat(post["num_comments"])
	communitySize, _ := asFloat(post["subreddit_subscribers"])

	return Observation{
		Locator:       locator,
		Title:         title,
		Score:         int64(score),
		CommentCount:  int64(comments),
		ObservedAt:    observedAt,
		CreatedAt:     time.Unix(int64(createdUTC), 0).UTC(),
		Community:     source,
		CommunitySize: int64(communitySize),
		Raw:           post,
	}, true
}

// downloadable filters out videos, gifs, galleries and text posts; only
// still images carry a thumbnail plus a preview block upstream.
func downloadable(post map[string]any) bool {
	thumbnail, _ := post["thumbnail"].(string)
	if thumbnail == "" {
		return false
	}

	if _, hasPreview := post["preview"]; !hasPreview {
		return false
	}

	locator, _ := post["url"].(string)
	for _, prefix := range []string{
		"https://www.reddit.com/r/",
		"https://v.redd.it/",
		"https://www.youtube.com/",
	} {
		if strings.HasPrefix(locator, prefix) {
			return false
		}
	}

	if strings.HasSuffix(locator, "gif") || strings.HasSuffix(locator, "gifv") {
		return false
	}

	if media, ok := post["secure_media"].(map[string]any); ok {
		if _, isVideo := media["reddit_video"]; isVideo {
			return false
		}
	}

	return true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
