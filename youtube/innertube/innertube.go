// Package innertube talks to YouTube's internal youtubei/v1 API and models
// the renderer objects found both in its responses and in the ytInitialData
// blob embedded in pages.
package innertube

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	ythttp "ytaccess/http"
)

const (
	// DefaultBaseURL is the youtubei API root.
	DefaultBaseURL = "https://www.youtube.com/youtubei/v1"

	// defaultClientName is the client identifier for web requests.
	defaultClientName = "WEB"
	// defaultClientVersion is the client version for web requests.
	defaultClientVersion = "2.20240101.00.00"

	// VideosTabParams selects a channel's Videos tab in a browse request.
	VideosTabParams = "EgZ2aWRlb3PyBgQKAjoA"
	// ChannelSearchParams restricts a search to channels.
	ChannelSearchParams = "EgIQAg%3D%3D"
)

// Client issues youtubei requests through the shared page fetcher, so they
// are rate limited, retried and circuit-broken like page loads.
type Client struct {
	httpClient    *ythttp.Client
	baseURL       string
	clientVersion string
	logger        *zap.Logger
}

// ClientOption configures the Innertube client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API root (tests use httptest).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithClientVersion overrides the WEB client version sent in the context.
func WithClientVersion(v string) ClientOption {
	return func(c *Client) {
		c.clientVersion = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new Innertube API client.
func NewClient(httpClient *ythttp.Client, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    httpClient,
		baseURL:       DefaultBaseURL,
		clientVersion: defaultClientVersion,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("innertube")
	return c
}

// requestContext is the "context" object every youtubei request carries.
type requestContext struct {
	Client clientInfo `json:"client"`
}

type clientInfo struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	HL            string `json:"hl"`
	GL            string `json:"gl"`
}

type browseRequest struct {
	Context      requestContext `json:"context"`
	BrowseID     string         `json:"browseId,omitempty"`
	Params       string         `json:"params,omitempty"`
	Continuation string         `json:"continuation,omitempty"`
}

type searchRequest struct {
	Context      requestContext `json:"context"`
	Query        string         `json:"query,omitempty"`
	Params       string         `json:"params,omitempty"`
	Continuation string         `json:"continuation,omitempty"`
}

func (c *Client) context() requestContext {
	return requestContext{Client: clientInfo{
		ClientName:    defaultClientName,
		ClientVersion: c.clientVersion,
		HL:            "en",
		GL:            "US",
	}}
}

// Browse fetches a browse page. With a continuation token, browseID and
// params are ignored and the next page of that listing is returned.
func (c *Client) Browse(ctx context.Context, browseID, params, continuation string) (map[string]any, error) {
	req := browseRequest{Context: c.context()}
	if continuation != "" {
		req.Continuation = continuation
	} else {
		req.BrowseID = browseID
		req.Params = params
	}
	return c.post(ctx, "browse", req)
}

// Search runs a youtubei search. params narrows the result type, for
// example ChannelSearchParams.
func (c *Client) Search(ctx context.Context, query, params string) (map[string]any, error) {
	return c.post(ctx, "search", searchRequest{
		Context: c.context(),
		Query:   query,
		Params:  params,
	})
}

// SearchContinuation fetches the next page of a search.
func (c *Client) SearchContinuation(ctx context.Context, token string) (map[string]any, error) {
	return c.post(ctx, "search", searchRequest{
		Context:      c.context(),
		Continuation: token,
	})
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Origin":                   "https://www.youtube.com",
		"Referer":                  "https://www.youtube.com/",
		"X-Youtube-Client-Name":    "1",
		"X-Youtube-Client-Version": c.clientVersion,
	}
	resp, err := c.httpClient.Post(ctx, c.baseURL+"/"+endpoint+"?prettyPrint=false", body, headers)
	if err != nil {
		return nil, fmt.Errorf("innertube %s: %w", endpoint, err)
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("innertube %s: unmarshal response: %w", endpoint, err)
	}
	c.logger.Debug("response", zap.String("endpoint", endpoint), zap.Int("bytes", len(resp.Body)))
	return out, nil
}
