package caldav

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/icholy/digest"
)

const (
	DefaultTimeout = 30 * time.Second

	// responses above this size are cut off
	maxBodySize = 4 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrNotConfigured    = errors.New("CalDAV not configured")
)

// Options tune the HTTP policy of a Client
type Options struct {
	Timeout   time.Duration
	RootCAs   *x509.CertPool // nil uses the system pool
	Logger    *slog.Logger
	UserAgent string
}

// Client talks WebDAV to a CalDAV server with Digest authentication.
// TLS certificates and hostnames are always verified and redirects are
// never followed.
type Client struct {
	username   string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a new CalDAV client
func NewClient(username, password string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vereinsportal-caldav/1.0"
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    opts.RootCAs,
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	httpClient := &http.Client{
		Transport: &digest.Transport{
			Username:  username,
			Password:  password,
			Transport: base,
		},
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		username:   username,
		httpClient: httpClient,
		logger:     opts.Logger,
		userAgent:  opts.UserAgent,
	}
}

// IsConfigured returns true if the client has a username
func (c *Client) IsConfigured() bool {
	return c.username != ""
}

// do sends one request and reads the whole body
func (c *Client) do(ctx context.Context, method, url string, body []byte, header http.Header) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("caldav request", "method", method, "url", url)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("caldav request failed", "method", method, "url", url, "error", err)
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("caldav response",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"duration", time.Since(start))

	return resp.StatusCode, respBody, nil
}

// Propfind enumerates the members of a collection with Depth: 1
func (c *Client) Propfind(ctx context.Context, collectionURL string) (int, []byte, error) {
	header := http.Header{}
	header.Set("Depth", "1")
	header.Set("Content-Type", "application/xml; charset=utf-8")
	return c.do(ctx, "PROPFIND", collectionURL, []byte(PropfindBody()), header)
}

// Get fetches a single resource
func (c *Client) Get(ctx context.Context, resourceURL string) (int, []byte, error) {
	header := http.Header{}
	header.Set("Accept", "text/calendar, */*;q=0.5")
	return c.do(ctx, http.MethodGet, resourceURL, nil, header)
}

// ListResources returns the absolute URLs of all .ics members of a
// collection, in the order the server listed them
func (c *Client) ListResources(ctx context.Context, collectionURL string) ([]string, error) {
	status, body, err := c.Propfind(ctx, collectionURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusMultiStatus && status != http.StatusOK {
		return nil, fmt.Errorf("PROPFIND %s: %w %d", collectionURL, ErrUnexpectedStatus, status)
	}

	resources, err := ParseMultistatus(body)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, r := range resources {
		if !r.IsICS() {
			continue
		}
		urls = append(urls, ResolveHref(collectionURL, r.Href))
	}
	return urls, nil
}

// FetchObject returns the raw iCalendar text of one resource
func (c *Client) FetchObject(ctx context.Context, resourceURL string) (string, error) {
	status, body, err := c.Get(ctx, resourceURL)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("GET %s: %w %d", resourceURL, ErrUnexpectedStatus, status)
	}
	return string(body), nil
}

// DiscoverCalendars walks principal, calendar home set and calendars
// starting from baseURL
func (c *Client) DiscoverCalendars(ctx context.Context, baseURL string) ([]Calendar, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	client, err := caldav.NewClient(c.httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        strings.TrimLeft(cal.Path, "/"),
			DisplayName: cal.Name,
			Description: cal.Description,
		})
	}

	return result, nil
}
