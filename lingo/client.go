// Package lingo is the HTTP client for the Lingo translation API.
//
// The client only transports bytes: it issues one GET per call with the
// workspace token in the Authorization header and returns the raw body.
// Interpreting the body (envelope code, record arrays) is left to langdata.
package lingo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, truncate(e.Body, 200))
}

// Client talks to a single Lingo host.
type Client struct {
	// BaseURL is scheme://host[:port] without a trailing slash.
	BaseURL string
	Token   string
	// OnRequest, if set, is called before each request is sent.
	OnRequest func(method, url, requestID string)

	http *http.Client
}

// NewClient returns a client for host:port. Port 443 selects https, any
// other port plain http. A host that already carries a scheme is used as
// the base URL unchanged. A zero timeout means no timeout.
func NewClient(host string, port int, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: BaseURL(host, port),
		Token:   token,
		http:    makeHTTPClient(timeout),
	}
}

// BaseURL builds scheme://host[:port] for the API server.
func BaseURL(host string, port int) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	switch port {
	case 443:
		return "https://" + host
	case 80, 0:
		return "http://" + host
	default:
		return "http://" + host + ":" + strconv.Itoa(port)
	}
}

func makeHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// HTTP_PROXY / HTTPS_PROXY / NO_PROXY
	transport.Proxy = http.ProxyFromEnvironment
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Fetch performs GET apiPath and returns the response body.
func (c *Client) Fetch(ctx context.Context, apiPath string) ([]byte, error) {
	endpoint, err := c.endpoint(apiPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", c.Token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("X-Request-ID", requestID)

	if c.OnRequest != nil {
		c.OnRequest(req.Method, endpoint, requestID)
	}

	client := c.http
	if client == nil {
		client = makeHTTPClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(body)}
	}
	return body, nil
}

func (c *Client) endpoint(apiPath string) (string, error) {
	if apiPath == "" {
		return "", fmt.Errorf("empty api path")
	}
	if !strings.HasPrefix(apiPath, "/") {
		apiPath = "/" + apiPath
	}
	u, err := url.Parse(c.BaseURL + apiPath)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", c.BaseURL+apiPath, err)
	}
	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
