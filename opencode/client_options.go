package opencode

import "net/http"

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. The stream subscription
// builds its own transport without a request timeout, so the provided
// client's timeout only applies to request/response calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
