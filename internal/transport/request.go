package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is everything needed to send a call verbatim, again. Attempt and
// RetriedAfterAuth are mutated by the client as the call moves through
// retries and credential refresh.
type Request struct {
	Method  string
	Path    string // relative to the client's base URL, or an absolute URL
	Header  http.Header
	Query   url.Values
	Body    []byte
	Timeout time.Duration // per attempt; 0 = client default

	// Attempt counts retries already made by the retry policy.
	Attempt int
	// RetriedAfterAuth is set once the call has waited on a credential
	// refresh. Such a call never triggers a second refresh.
	RetriedAfterAuth bool

	// sentWith is the access token the latest attempt carried.
	sentWith string
}

// RequestOption customises a single call.
type RequestOption func(*Request)

// WithHeader sets an extra header on every attempt of the call.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery merges query parameters into the request URL.
func WithQuery(q url.Values) RequestOption {
	return func(r *Request) {
		for k, vs := range q {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithRequestTimeout overrides the per-attempt timeout for this call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

func newRequest(method, path string, body any, opts []RequestOption) (*Request, error) {
	encoded, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding %s %s body: %w", method, path, err)
	}

	req := &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Query:  make(url.Values),
		Body:   encoded,
	}

	for _, opt := range opts {
		opt(req)
	}

	return req, nil
}

// encodeBody buffers the request body so every attempt sends the same bytes.
// Raw bytes and readers are sent as-is; anything else is JSON-encoded.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

// resolve joins the request path onto baseURL unless the path is absolute.
func (r *Request) resolve(baseURL string) (string, error) {
	target := r.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("transport: parsing URL %q: %w", target, err)
	}

	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}

		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// build creates a fresh, undecorated *http.Request for one attempt.
func (r *Request) build(ctx context.Context, target string) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: creating request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	if r.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}

	return hreq, nil
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string // X-Request-ID sent on the attempt that produced this response
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("transport: decoding response body: %w", err)
	}

	return nil
}

func (r *Response) success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
