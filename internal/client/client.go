// Package client talks to the alarm service over its v2 REST API.
//
// Only the read paths that carry compiled queries are covered: the complex
// query endpoints for alarms and alarm history, and the alarm list endpoint
// with q.* filter groups.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Header names sent on every request.
const (
	HeaderAuthToken = "X-Auth-Token"
	HeaderUserID    = "X-User-Id"
	HeaderProjectID = "X-Project-Id"
	HeaderRoles     = "X-Roles"
	HeaderRequestID = "X-Openstack-Request-Id"
)

// Options configures a Client.
type Options struct {
	// Endpoint is the service root, e.g. http://localhost:8042.
	Endpoint string

	// Token is sent as X-Auth-Token. When empty the noauth identity headers
	// (UserID, ProjectID, Roles) are sent instead.
	Token     string
	UserID    string
	ProjectID string
	Roles     string

	Timeout    time.Duration
	HTTPClient *http.Client

	// Logger receives one debug entry per request. Defaults to the standard
	// logrus logger.
	Logger log.FieldLogger
}

// Client is a narrow alarm service client. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	opts   Options
	http   *http.Client
	logger log.FieldLogger
	newID  func() string
}

// New validates the endpoint and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("client: endpoint is required")
	}
	base, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("client: parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: endpoint %q must use http or https", opts.Endpoint)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Client{
		base:   base,
		opts:   opts,
		http:   httpClient,
		logger: logger,
		newID:  func() string { return "req-" + uuid.NewString() },
	}, nil
}

// resolve joins a relative API path (and optional raw query) onto the base.
func (c *Client) resolve(path, rawQuery string) string {
	u := *c.base
	u.Path += path
	u.RawQuery = rawQuery
	return u.String()
}

// do sends one request and decodes a JSON response into out. body, when
// non-nil, is JSON encoded without HTML escaping.
func (c *Client) do(ctx context.Context, method, path, rawQuery string, body, out any) error {
	target := c.resolve(path, rawQuery)

	var payload io.Reader
	if body != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := c.newID()
	c.setHeaders(req, requestID, body != nil)

	start := time.Now()
	resp, err := c.http.Do(req)
	entry := c.logger.WithFields(log.Fields{
		"method":    method,
		"url":       target,
		"requestID": requestID,
		"duration":  time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Debug("Alarm API request failed")
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	entry.WithField("status", resp.StatusCode).Debug("Alarm API request")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp, data, method, target, requestID)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, target, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, requestID string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, requestID)

	if c.opts.Token != "" {
		req.Header.Set(HeaderAuthToken, c.opts.Token)
		return
	}
	if c.opts.UserID != "" {
		req.Header.Set(HeaderUserID, c.opts.UserID)
	}
	if c.opts.ProjectID != "" {
		req.Header.Set(HeaderProjectID, c.opts.ProjectID)
	}
	if c.opts.Roles != "" {
		req.Header.Set(HeaderRoles, c.opts.Roles)
	}
}
