package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the Google Drive v3 API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	// defaultPageSize is the number of children requested per page.
	defaultPageSize = 100

	// itemFields is the field projection requested for every item.
	itemFields = "id,name,mimeType,size,modifiedTime,webViewLink,thumbnailLink,parents"
)

// HTTPClient implements Client over the provider's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client for the given endpoint and bearer
// token. Pass baseURL="" to use the real Drive API endpoint.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// ListChildren implements Client.ListChildren.
func (c *HTTPClient) ListChildren(ctx context.Context, folderID, pageToken string) (*Page, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
	params.Set("fields", fmt.Sprintf("nextPageToken, files(%s)", itemFields))
	params.Set("pageSize", fmt.Sprintf("%d", defaultPageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var page Page
	if err := c.get(ctx, "/files?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", folderID, err)
	}

	return &page, nil
}

// GetNode implements Client.GetNode.
func (c *HTTPClient) GetNode(ctx context.Context, id string) (*Item, error) {
	params := url.Values{}
	params.Set("fields", itemFields)

	var item Item
	if err := c.get(ctx, "/files/"+url.PathEscape(id)+"?"+params.Encode(), &item); err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", id, err)
	}

	return &item, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
