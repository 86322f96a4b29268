/*
 * sbom/client.go
 *
 * Client fetches SBOM blobs from the Bombastic-shaped artifact service. No
 * third-party HTTP client library appears anywhere in the retrieval pack for
 * generic outbound REST traffic, so this follows the stdlib net/http
 * request/client pattern used elsewhere in the ecosystem for the same
 * purpose.
 */

package sbom

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client fetches SBOM blobs by purl from an artifact service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client against baseURL, bounding every request to timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the SBOM blob for purl as an opaque string. A non-2xx
// response is reported as a FetchError.
func (c *Client) Fetch(ctx context.Context, purl string) (string, error) {
	endpoint := c.baseURL + "/api/v1/sbom?purl=" + url.QueryEscape(purl)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", NewFetchError(purl, 0, err.Error())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", NewFetchError(purl, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", NewFetchError(purl, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewFetchError(purl, resp.StatusCode, err.Error())
	}

	return string(body), nil
}
