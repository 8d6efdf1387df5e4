// Package fetch defines the request/response contract between the crawl
// orchestration and the transport that executes it. The core never performs
// raw socket I/O itself; it hands Requests to an Engine.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Request describes one fetch the crawl wants performed.
type Request struct {
	// Method is the HTTP method; GET when empty.
	Method string
	// URL is the absolute request URL.
	URL string
	// Body, when non-nil, is JSON-encoded and sent as the request body.
	Body any
	// Tags carry correlation values (warehouse, subunit, query prefix)
	// through the engine back to the response handler untouched.
	Tags map[string]string
}

// Get returns a GET request for url.
func Get(url string) *Request {
	return &Request{Method: http.MethodGet, URL: url}
}

// PostJSON returns a POST request with body serialized as JSON.
func PostJSON(url string, body any) *Request {
	return &Request{Method: http.MethodPost, URL: url, Body: body}
}

// Response is the engine's reply: status, raw body, and the originating
// request with its correlation tags.
type Response struct {
	StatusCode int
	Body       []byte
	Request    *Request
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.Request.URL, err)
	}
	return nil
}

// Engine executes requests. Implementations own transport concerns:
// timeouts, retry, backoff, caching.
type Engine interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
