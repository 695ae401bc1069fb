package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultLayoutPath is appended to the base URL.
const DefaultLayoutPath = "/layout.json"

// HTTPSource GETs {BaseURL}{Path} and decodes it as a Layout. No retry is attempted.
type HTTPSource struct {
	BaseURL string
	Path    string
	Client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    DefaultLayoutPath,
		Client:  client,
	}
}

func (s *HTTPSource) Layout(ctx context.Context) (*Layout, error) {
	path := s.Path
	if path == "" {
		path = DefaultLayoutPath
	}
	url := s.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	var layout Layout
	if err := json.NewDecoder(resp.Body).Decode(&layout); err != nil {
		return nil, fmt.Errorf("discovery: decode %s: %w", url, err)
	}
	return &layout, nil
}
