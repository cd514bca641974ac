package explorer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/tokenwatch/internal/indexing/metrics"
)

// Config holds the explorer endpoint and the fixed query parameters.
type Config struct {
	URL      string
	ChainID  int64
	Contract string
	Timeout  time.Duration
}

// Client fetches tokentx pages over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates an explorer client with a bounded per-request timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch performs one GET against the tokentx endpoint and classifies the result.
func (c *Client) Fetch(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := c.fetch(ctx, req)

	metrics.ExplorerRequests.WithLabelValues(out.Kind.String()).Inc()
	metrics.ExplorerLatency.Observe(time.Since(start).Seconds())
	return out
}

func (c *Client) fetch(ctx context.Context, req Request) Outcome {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Message: "build request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Message: "create request", Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Message: err.Error(), Err: fmt.Errorf("explorer call: %w", err)}
	}
	defer resp.Body.Close()

	// 5xx bodies are not inspected.
	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Classify(resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{
			Kind:       OutcomeTransient,
			StatusCode: resp.StatusCode,
			Message:    "read response",
			Err:        fmt.Errorf("read response: %w", err),
		}
	}

	return Classify(resp.StatusCode, body)
}

func (c *Client) buildURL(req Request) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse explorer url: %w", err)
	}

	q := u.Query()
	q.Set("apikey", req.APIKey)
	q.Set("chainid", strconv.FormatInt(c.cfg.ChainID, 10))
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", c.cfg.Contract)
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("offset", strconv.Itoa(req.PageSize))
	q.Set("sort", "desc")
	q.Set("startblock", strconv.FormatUint(req.StartBlock, 10))
	q.Set("endblock", strconv.FormatUint(req.EndBlock, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
