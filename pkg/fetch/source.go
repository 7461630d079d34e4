package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPSource fetches pages from a JSON HTTP endpoint. A page request is a
// GET with the continuation cursor in the "cursor" query parameter; the
// response body is a Page document. Non-200 responses are errors; retrying
// belongs to an outer layer.
type HTTPSource struct {
	// Client used for requests. Nil means http.DefaultClient.
	Client *http.Client
}

// FetchPage implements PageFetcher.
func (s *HTTPSource) FetchPage(ctx context.Context, rawURL, cursor string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: invalid url '%s': %w", rawURL, err)
	}
	if cursor != "" {
		q := u.Query()
		q.Set("cursor", cursor)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: could not build request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch: %s returned status %d", u.Host, resp.StatusCode)
	}

	var page Page
	if err = json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("fetch: could not decode page: %w", err)
	}
	return page, nil
}
