// Package gitlab provides a minimal GitLab API v4 client covering the calls the
// registry makes: listing groups, projects, branches, tags and commits, and
// reading a file at a ref.
package gitlab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/stacklok/gitlab-composer-registry/internal/otel"
)

const (
	// DefaultTimeout is the default timeout for a single HTTP attempt
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// PerPage is the page size requested from every listing endpoint
	PerPage = 100

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "gitlab-composer-registry/1.0"

	// DefaultRequestsPerSecond is the default client-side rate limit
	DefaultRequestsPerSecond = 10

	// DefaultRetryMax is the number of retries for 429, 5xx and connection errors
	DefaultRetryMax = 4

	// breakerThreshold is the number of consecutive upstream failures that open the breaker
	breakerThreshold = 5

	tokenHeader = "PRIVATE-TOKEN"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client is the subset of the GitLab API v4 used by the registry.
// Listing methods take a 1-based page number and return an empty slice past
// the last page.
type Client interface {
	// ListGroups lists the groups visible to the credential
	ListGroups(ctx context.Context, page int) ([]Group, error)
	// ListGroupProjects lists the projects of a group
	ListGroupProjects(ctx context.Context, groupID int64, page int) ([]Project, error)
	// ListProjects lists every project visible to the credential
	ListProjects(ctx context.Context, page int) ([]Project, error)
	// ListBranches lists the branches of a project
	ListBranches(ctx context.Context, projectID int64, page int) ([]Ref, error)
	// ListTags lists the tags of a project
	ListTags(ctx context.Context, projectID int64, page int) ([]Ref, error)
	// GetBranch returns a single branch
	GetBranch(ctx context.Context, projectID int64, name string) (*Ref, error)
	// GetFile returns the content of a file at a ref, or nil if it does not exist
	GetFile(ctx context.Context, projectID int64, path, ref string) ([]byte, error)
	// ListCommits lists the commits reachable from ref, newest first
	ListCommits(ctx context.Context, projectID int64, ref string, page int) ([]Commit, error)
}

// Options configures an APIClient
type Options struct {
	// Endpoint is the GitLab base URL, with or without the /api/v4 suffix
	Endpoint string
	// Token is sent as the PRIVATE-TOKEN header
	Token string
	// RequestsPerSecond limits the request rate; zero means DefaultRequestsPerSecond
	// and a negative value disables limiting
	RequestsPerSecond float64
	// RetryMax overrides DefaultRetryMax when positive; negative disables retries
	RetryMax int
	// Timeout overrides DefaultTimeout when positive
	Timeout time.Duration
	// Logger receives retry diagnostics; defaults to slog.Default()
	Logger *slog.Logger
	// Tracer creates a span per request when set
	Tracer trace.Tracer
	// HTTPClient replaces the default DNS-caching client, mostly for tests
	HTTPClient *http.Client
}

// APIClient is the HTTP implementation of Client
type APIClient struct {
	baseURL  *url.URL
	token    string
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	breaker  *circuit.Breaker
	tracer   trace.Tracer
	resolver *dnscache.Resolver

	done      chan struct{}
	closeOnce sync.Once
}

var _ Client = (*APIClient)(nil)

// NewClient creates a GitLab API client
func NewClient(opts Options) (*APIClient, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("gitlab endpoint is required")
	}
	base, err := apiBaseURL(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &APIClient{
		baseURL: base,
		token:   opts.Token,
		limiter: newLimiter(opts.RequestsPerSecond),
		breaker: newBreaker(),
		tracer:  opts.Tracer,
		done:    make(chan struct{}),
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = c.newCachingHTTPClient(timeout)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.Logger = logger.With("component", "gitlab")
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	switch {
	case opts.RetryMax > 0:
		rc.RetryMax = opts.RetryMax
	case opts.RetryMax < 0:
		rc.RetryMax = 0
	default:
		rc.RetryMax = DefaultRetryMax
	}
	// Keep the last response after retries are exhausted so it maps to an HTTPError
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.http = rc

	return c, nil
}

// Close stops the background DNS refresh. It is safe to call more than once
// and from several goroutines.
func (c *APIClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func apiBaseURL(endpoint string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gitlab endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gitlab endpoint %q: scheme must be http or https", endpoint)
	}
	if !strings.HasSuffix(u.Path, "/api/v4") {
		u.Path += "/api/v4"
	}
	return u, nil
}

func newLimiter(rps float64) *rate.Limiter {
	switch {
	case rps < 0:
		return rate.NewLimiter(rate.Inf, 0)
	case rps == 0:
		rps = DefaultRequestsPerSecond
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func newBreaker() *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 10 * time.Second
	expBackoff.MaxInterval = 2 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(breakerThreshold),
	})
}

func (c *APIClient) newCachingHTTPClient(timeout time.Duration) *http.Client {
	c.resolver = &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.resolver.Refresh(true)
			case <-c.done:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := c.resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				var lastErr error
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
					lastErr = err
				}
				return nil, fmt.Errorf("failed to dial any resolved IP for %s: %w", host, lastErr)
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// ListGroups implements Client
func (c *APIClient) ListGroups(ctx context.Context, page int) ([]Group, error) {
	var groups []Group
	if err := c.getJSON(ctx, "groups", pageQuery(page), &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroupProjects implements Client
func (c *APIClient) ListGroupProjects(ctx context.Context, groupID int64, page int) ([]Project, error) {
	var projects []Project
	if err := c.getJSON(ctx, "groups/"+id(groupID)+"/projects", pageQuery(page), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ListProjects implements Client
func (c *APIClient) ListProjects(ctx context.Context, page int) ([]Project, error) {
	var projects []Project
	if err := c.getJSON(ctx, "projects", pageQuery(page), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ListBranches implements Client
func (c *APIClient) ListBranches(ctx context.Context, projectID int64, page int) ([]Ref, error) {
	var refs []Ref
	if err := c.getJSON(ctx, "projects/"+id(projectID)+"/repository/branches", pageQuery(page), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// ListTags implements Client
func (c *APIClient) ListTags(ctx context.Context, projectID int64, page int) ([]Ref, error) {
	var refs []Ref
	if err := c.getJSON(ctx, "projects/"+id(projectID)+"/repository/tags", pageQuery(page), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// GetBranch implements Client
func (c *APIClient) GetBranch(ctx context.Context, projectID int64, name string) (*Ref, error) {
	var ref Ref
	p := "projects/" + id(projectID) + "/repository/branches/" + url.PathEscape(name)
	if err := c.getJSON(ctx, p, nil, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetFile implements Client
func (c *APIClient) GetFile(ctx context.Context, projectID int64, path, ref string) ([]byte, error) {
	var file fileResponse
	p := "projects/" + id(projectID) + "/repository/files/" + url.PathEscape(path)
	err := c.getJSON(ctx, p, url.Values{"ref": {ref}}, &file)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if file.Encoding != "" && file.Encoding != "base64" {
		return []byte(file.Content), nil
	}
	content, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s at %s: %w", path, ref, err)
	}
	return content, nil
}

// ListCommits implements Client
func (c *APIClient) ListCommits(ctx context.Context, projectID int64, ref string, page int) ([]Commit, error) {
	q := pageQuery(page)
	if ref != "" {
		q.Set("ref_name", ref)
	}
	var commits []Commit
	if err := c.getJSON(ctx, "projects/"+id(projectID)+"/repository/commits", q, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := *c.baseURL
	// RawPath keeps the %2F of url-encoded file and branch names
	endpoint.RawPath = c.baseURL.EscapedPath() + "/" + path
	endpoint.Path = c.baseURL.Path + "/" + unescapePath(path)
	endpoint.RawQuery = query.Encode()
	target := endpoint.String()

	ctx, span := otel.StartSpan(ctx, c.tracer, "gitlab.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(otel.AttrRequestURL.String(redact(&endpoint))),
	)
	defer span.End()

	body, err := c.get(ctx, target)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to decode response from %s: %w", redact(&endpoint), err)
	}
	return nil
}

func (c *APIClient) get(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	var reqErr error
	err := c.breaker.Call(func() error {
		body, reqErr = c.do(ctx, target)
		if ctx.Err() != nil || !isUpstreamFailure(reqErr) {
			return nil
		}
		return reqErr
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return nil, ErrUpstreamUnavailable
	}
	if err != nil {
		return nil, err
	}
	return body, reqErr
}

func (c *APIClient) do(ctx context.Context, target string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, redactString(target), resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, resp.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// isUpstreamFailure reports whether err counts against the circuit breaker.
// Client errors and oversized responses mean GitLab answered.
func isUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func pageQuery(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(PerPage)},
	}
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func unescapePath(p string) string {
	u, err := url.PathUnescape(p)
	if err != nil {
		return p
	}
	return u
}

func redact(u *url.URL) string {
	return u.Redacted()
}

func redactString(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Redacted()
}
