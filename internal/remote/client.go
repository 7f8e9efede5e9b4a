package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauern/hubsync/internal/model"
)

const (
	// DefaultTimeout bounds every request when ClientOptions.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// TenantHeader carries the tenant on every request.
	TenantHeader = "X-Hub-Tenant"

	apiPrefix = "/api/v1/"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Token is sent as a bearer token when set.
	Token string
	// Tenant is sent in TenantHeader when set.
	Tenant string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a JSON client for the content hub API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	tenant     string
}

// NewClient creates a client for the hub at baseURL.
func NewClient(baseURL string, opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		}
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      opts.Token,
		tenant:     opts.Tenant,
	}
}

// BaseURL returns the hub URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tenant returns the configured tenant.
func (c *Client) Tenant() string {
	return c.tenant
}

// Store returns the API for one artifact kind.
func (c *Client) Store(kind model.Kind, caps Capabilities) *ItemStore {
	return &ItemStore{client: c, kind: kind, caps: caps}
}

// Fetch downloads a raw document, such as a manifest, from a hub path.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return raw, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, header http.Header, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenant != "" {
		req.Header.Set(TenantHeader, c.tenant)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), Retry: true}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response body: %v", err), Retry: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewError(resp.StatusCode, errorMessage(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// ItemStore implements Store over HTTP for one kind.
type ItemStore struct {
	client *Client
	kind   model.Kind
	caps   Capabilities
}

// Kind implements Store.
func (s *ItemStore) Kind() model.Kind { return s.kind }

// Capabilities implements Store.
func (s *ItemStore) Capabilities() Capabilities { return s.caps }

// Create implements Store.
func (s *ItemStore) Create(ctx context.Context, item model.Artifact) (model.Artifact, error) {
	var out model.Artifact
	if err := s.client.doRequest(ctx, http.MethodPost, s.collection(), nil, item, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update implements Store. The item's rev is sent in If-Match unless the store
// forces overrides.
func (s *ItemStore) Update(ctx context.Context, item model.Artifact) (model.Artifact, error) {
	id := item.ID()
	if id == "" {
		return nil, NewError(http.StatusNotFound, "item has no id")
	}

	p := s.itemPath(id)
	header := http.Header{}
	if s.caps.ForceOverride {
		p += "?force=true"
	} else if rev := item.Rev(); rev != "" {
		header.Set("If-Match", rev)
	}

	var out model.Artifact
	if err := s.client.doRequest(ctx, http.MethodPut, p, header, item, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements Store.
func (s *ItemStore) Get(ctx context.Context, id string) (model.Artifact, error) {
	var out model.Artifact
	if err := s.client.doRequest(ctx, http.MethodGet, s.itemPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByPath implements Store.
func (s *ItemStore) GetByPath(ctx context.Context, path string) (model.Artifact, error) {
	if !s.caps.ItemByPath {
		return nil, fmt.Errorf("%s by path: %w", s.kind, ErrNotSupported)
	}
	q := url.Values{"path": {path}}
	var out model.Artifact
	if err := s.client.doRequest(ctx, http.MethodGet, s.collection()+"?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll implements Store.
func (s *ItemStore) ListAll(ctx context.Context, opts PageOptions) (Page, error) {
	return s.list(ctx, pageQuery(opts))
}

// ListModifiedSince implements Store.
func (s *ItemStore) ListModifiedSince(ctx context.Context, since time.Time, opts PageOptions) (Page, error) {
	q := pageQuery(opts)
	if !since.IsZero() {
		q.Set("modifiedSince", since.UTC().Format(time.RFC3339Nano))
	}
	return s.list(ctx, q)
}

// Delete implements Store.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	return s.client.doRequest(ctx, http.MethodDelete, s.itemPath(id), nil, nil, nil)
}

func (s *ItemStore) list(ctx context.Context, q url.Values) (Page, error) {
	p := s.collection()
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	var page Page
	if err := s.client.doRequest(ctx, http.MethodGet, p, nil, nil, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *ItemStore) collection() string {
	return apiPrefix + string(s.kind)
}

func (s *ItemStore) itemPath(id string) string {
	return s.collection() + "/" + url.PathEscape(id)
}

func pageQuery(opts PageOptions) url.Values {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Continuation != "" {
		q.Set("continuation", opts.Continuation)
	}
	if opts.Status != model.StatusAll {
		q.Set("status", string(opts.Status))
	}
	return q
}
