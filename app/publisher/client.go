package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// Channel selects the downstream surface a publication lands on.
type Channel string

const (
	// ChannelPrimary is the account's main surface, gated by the daily budget.
	ChannelPrimary Channel = "instant"
	// ChannelSecondary is the lower-priority surface for over-budget content.
	ChannelSecondary Channel = "story"
)

// Request carries everything the downstream collaborator needs for one
// publication. The caption is built by the caller; the client only performs
// the network call.
type Request struct {
	AssetPath       string
	Caption         string
	AccountName     string
	AccountPassword string
	Channel         Channel
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Publish posts the asset with its caption to the requested channel. The
// asset is read from the local cache; callers Ensure it first.
func (c *Client) Publish(ctx context.Context, req Request) error {
	f, err := os.Open(req.AssetPath)
	if err != nil {
		return fmt.Errorf("failed to open asset for publication: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filepath.Base(req.AssetPath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read asset: %w", err)
	}

	fields := map[string]string{
		"caption":  req.Caption,
		"username": req.AccountName,
		"password": req.AccountPassword,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, req.Channel)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create publish request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publisher returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
