package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rickgao/sourcewatch/internal/model"
)

// apiKeyPlaceholder is the token sources embed in header templates to mark
// where the resolved secret belongs.
const apiKeyPlaceholder = "{apiKey}"

// apiKeyHeader is added when a source has a secret but no header embeds it.
const apiKeyHeader = "X-API-Key"

// Fetch retrieves the current payload for a source, dispatching on its kind.
// The returned value is a decoded JSON-compatible structure: a 2-D array for
// sheets, the decoded document for json, and a structural map for xml.
func (c *Client) Fetch(ctx context.Context, src model.Source) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch src.Kind {
	case model.KindSheet:
		return c.fetchSheet(ctx, src)
	case model.KindJSON:
		body, err := c.get(ctx, src, src.URL)
		if err != nil {
			return nil, err
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("decode json: %w", err)}
		}
		return payload, nil
	case model.KindXML:
		body, err := c.get(ctx, src, src.URL)
		if err != nil {
			return nil, err
		}
		payload, err := parseXML(body)
		if err != nil {
			return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("decode xml: %w", err)}
		}
		return payload, nil
	default:
		return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("unsupported source kind %q", src.Kind)}
	}
}

// fetchSheet reads a cell range from the spreadsheet values API.
func (c *Client) fetchSheet(ctx context.Context, src model.Source) (any, error) {
	cellRange := src.Range
	if cellRange == "" {
		cellRange = DefaultSheetRange
	}

	fullURL := fmt.Sprintf("%s/%s/values/%s",
		c.sheetsAPIURL,
		url.PathEscape(src.SheetID),
		url.PathEscape(cellRange),
	)

	body, err := c.get(ctx, src, fullURL)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("decode values: %w", err)}
	}

	if resp.Values == nil {
		return [][]any{}, nil
	}
	return resp.Values, nil
}

// get performs a single GET with the source's header template applied.
func (c *Client) get(ctx context.Context, src model.Source, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range c.buildHeaders(src) {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{SourceID: src.ID, Timeout: true, Err: err}
		}
		return nil, &Error{SourceID: src.ID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{SourceID: src.ID, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{SourceID: src.ID, StatusCode: resp.StatusCode}
	}

	return body, nil
}

// buildHeaders combines the source's static header template with its resolved
// secret, if any. Injection is idempotent: a key already embedded in a header
// is not duplicated.
func (c *Client) buildHeaders(src model.Source) map[string]string {
	headers := make(map[string]string, len(src.Headers)+1)
	for key, value := range src.Headers {
		headers[key] = value
	}

	if src.SecretRef == "" || c.secrets == nil {
		return headers
	}

	apiKey, err := c.secrets.Resolve(src.SecretRef)
	if err != nil {
		// Fetch proceeds without the key; the endpoint's 401 will surface as
		// a FetchError on this poll.
		c.logger.Warn("failed to resolve secret",
			"source_id", src.ID,
			"secret_ref", src.SecretRef,
			"error", err,
		)
		return headers
	}
	if apiKey == "" {
		return headers
	}

	embedded := false
	for key, value := range headers {
		if strings.Contains(value, apiKeyPlaceholder) {
			headers[key] = strings.ReplaceAll(value, apiKeyPlaceholder, apiKey)
			embedded = true
		} else if strings.Contains(value, apiKey) {
			embedded = true
		}
	}

	if !embedded {
		headers[apiKeyHeader] = apiKey
	}

	return headers
}
