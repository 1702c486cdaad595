package customers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProvider reads customers from a profile service:
//
//	GET {base}/customers/{id}          -> {"first_name": "...", "balance": 10}
//	GET {base}/segments/{id}/members   -> {"customer_ids": ["..."]}
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewHTTPProvider(baseURL string, headers map[string]string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		headers: headers,
	}
}

func (p *HTTPProvider) Attributes(ctx context.Context, customerID string) (map[string]any, error) {
	var attributes map[string]any

	err := p.get(ctx, "/customers/"+url.PathEscape(customerID), &attributes)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", customerID, err)
	}

	if attributes == nil {
		attributes = map[string]any{}
	}

	return attributes, nil
}

func (p *HTTPProvider) SegmentMembers(ctx context.Context, segmentID string) ([]string, error) {
	var body struct {
		CustomerIDs []string `json:"customer_ids"`
	}

	err := p.get(ctx, "/segments/"+url.PathEscape(segmentID)+"/members", &body)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", segmentID, err)
	}

	return body.CustomerIDs, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	for key, value := range p.headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCustomerNotFound
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	return nil
}
