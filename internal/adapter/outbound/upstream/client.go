// Package upstream implements the HTTP client that carries governed
// messages to workspace tool servers: pooled connections, bounded
// retries on transport failures, and strict header discipline in both
// directions.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cerberus-gate/cerberus/internal/config"
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
)

// maxResponseBytes caps upstream response bodies read into memory.
const maxResponseBytes = 10 << 20

// hopByHopHeaders never cross the gateway in either direction.
var hopByHopHeaders = map[string]bool{
	"host":                true,
	"connection":          true,
	"keep-alive":          true,
	"transfer-encoding":   true,
	"te":                  true,
	"trailer":             true,
	"upgrade":             true,
	"proxy-authorization": true,
	"proxy-connection":    true,
}

// Call is one upstream invocation: the inbound request's routing data
// plus the governed body.
type Call struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	Headers   http.Header
	RequestID string
	ClientIP  string
	UserAgent string
	Agent     *credential.AgentContext
}

// Result is the outcome of an upstream call. ErrorMessage is empty on
// success; failures carry the synthesised status and no body.
type Result struct {
	Status         int
	Body           []byte
	Headers        http.Header
	ResponseTimeMS int64
	ErrorMessage   string
}

// Failed reports whether the call did not produce a usable JSON body.
func (r *Result) Failed() bool {
	return r.ErrorMessage != ""
}

// Client forwards governed requests to workspace upstreams over a
// shared connection pool. One Client serves the whole process.
type Client struct {
	http       *http.Client
	cfg        config.UpstreamConfig
	proxy      config.ProxyConfig
	blocked    map[string]bool
	allowed    map[string]bool
	logger     *slog.Logger
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Tests only.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates an upstream client with a pooled transport sized
// per config.
func NewClient(cfg config.UpstreamConfig, proxy config.ProxyConfig, logger *slog.Logger, opts ...ClientOption) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxKeepaliveConnections,
		MaxConnsPerHost:     cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout(),
		},
		cfg:        cfg,
		proxy:      proxy,
		blocked:    toSet(proxy.NormalizedBlockedHeaders()),
		allowed:    toSet(proxy.NormalizedForwardHeaders()),
		logger:     logger,
		maxRetries: cfg.MaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Forward carries one call to the agent's upstream. Transport failures
// (connect errors, timeouts) are retried up to max_retries; every other
// failure mode returns immediately. Failures are in-band Results, never
// Go errors, so the proxy can translate them uniformly.
func (c *Client) Forward(ctx context.Context, call *Call) *Result {
	start := time.Now()

	if call.Agent == nil || call.Agent.UpstreamURL == "" {
		return &Result{
			Status:         http.StatusBadGateway,
			ErrorMessage:   "upstream URL not configured for workspace",
			ResponseTimeMS: time.Since(start).Milliseconds(),
		}
	}

	url := buildURL(call.Agent.UpstreamURL, call.Path, call.Query)
	body := c.requestBody(call)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, call.Method, url, reader)
		if err != nil {
			return c.failure(start, http.StatusBadGateway, fmt.Sprintf("build upstream request: %v", err))
		}
		req.Header = c.outboundHeaders(call)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if isRetryable(err) && attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Warn("upstream attempt failed, retrying",
					"url", url,
					"attempt", attempt+1,
					"error", err,
				)
				continue
			}
			return c.failure(start, http.StatusBadGateway, fmt.Sprintf("upstream unreachable: %v", err))
		}
		return c.readResponse(start, resp)
	}

	return c.failure(start, http.StatusBadGateway, fmt.Sprintf("upstream unreachable: %v", lastErr))
}

func buildURL(base, path, query string) string {
	url := strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url += path
	if query != "" {
		url += "?" + query
	}
	return url
}

// requestBody applies the verb mapping: bodiless verbs drop the body,
// body-bearing verbs forward it, DELETE forwards only when present.
func (c *Client) requestBody(call *Call) []byte {
	switch call.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return call.Body
	default:
		if len(call.Body) > 0 {
			return call.Body
		}
		return nil
	}
}

// outboundHeaders computes the upstream header set: filtered client
// headers first, gateway headers last so they always win.
func (c *Client) outboundHeaders(call *Call) http.Header {
	out := make(http.Header)

	for name, values := range call.Headers {
		lower := strings.ToLower(name)
		if hopByHopHeaders[lower] || c.blocked[lower] {
			continue
		}
		if lower == "authorization" && !c.proxy.ForwardAuthorization {
			continue
		}
		if !c.proxy.ForwardAllHeaders && !c.allowed[lower] {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}

	out.Set("Content-Type", "application/json")
	out.Set(c.proxy.RequestIDHeader, call.RequestID)
	clientIP := call.ClientIP
	if clientIP == "" {
		clientIP = "unknown"
	}
	out.Set(c.proxy.ForwardedForHeader, clientIP)
	out.Set("X-Organisation-ID", call.Agent.OrganisationID)
	out.Set("X-MCP-Server-Workspace-ID", call.Agent.WorkspaceID)
	out.Set("X-Agent-Access-ID", call.Agent.AgentID)
	if call.UserAgent != "" {
		out.Set("X-Original-User-Agent", call.UserAgent)
	}
	return out
}

func (c *Client) readResponse(start time.Time, resp *http.Response) *Result {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.failure(start, http.StatusBadGateway, fmt.Sprintf("read upstream response: %v", err))
	}
	if !isJSON(body) {
		return c.failure(start, http.StatusBadGateway, "upstream returned non-JSON response")
	}

	return &Result{
		Status:         resp.StatusCode,
		Body:           body,
		Headers:        filterResponseHeaders(resp.Header),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// filterResponseHeaders drops hop-by-hop headers and those the
// gateway's own transport recomputes.
func filterResponseHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for name, values := range in {
		lower := strings.ToLower(name)
		if hopByHopHeaders[lower] || lower == "content-encoding" || lower == "content-length" {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}

func (c *Client) failure(start time.Time, status int, message string) *Result {
	return &Result{
		Status:         status,
		ErrorMessage:   message,
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// isRetryable limits retries to connect errors and timeouts.
// Application-level statuses never reach here; they are responses, not
// errors.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, io.EOF)
}

func isJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	return json.Valid(trimmed)
}
