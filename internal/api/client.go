// Package api is a thin client for the server's GraphQL query API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

const (
	DefaultEndpoint    = "http://localhost:8000/graphql"
	DefaultTimeout     = 15 * time.Second
	DefaultJobCacheTTL = 5 * time.Minute
)

// ErrNotFound is returned by lookups by id that match nothing.
var ErrNotFound = errors.New("not found")

type Options struct {
	Endpoint    string
	Timeout     time.Duration
	JobCacheTTL time.Duration
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

type Client struct {
	http     *resty.Client
	endpoint string
	jobs     *ttlcache.Cache[string, model.Job]
	log      zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.JobCacheTTL <= 0 {
		opts.JobCacheTTL = DefaultJobCacheTTL
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	jobs := ttlcache.New[string, model.Job](
		ttlcache.WithTTL[string, model.Job](opts.JobCacheTTL),
		ttlcache.WithCapacity[string, model.Job](512),
	)
	go jobs.Start()

	return &Client{
		http:     rc,
		endpoint: opts.Endpoint,
		jobs:     jobs,
		log:      opts.Logger,
	}
}

// Close stops background cache maintenance.
func (c *Client) Close() {
	c.jobs.Stop()
}

func (c *Client) Endpoint() string { return c.endpoint }

type graphqlRequest struct {
	Query string `json:"query"`
}

// do posts a GraphQL document with cred as bearer token and returns the
// data member of the response. op names the operation in errors, logs and
// metrics.
func (c *Client) do(ctx context.Context, cred model.Credential, op, query string) (json.RawMessage, error) {
	return c.post(ctx, op, query, func(req *resty.Request) {
		if cred != "" {
			req.SetAuthToken(string(cred))
		}
	})
}

func (c *Client) post(ctx context.Context, op, query string, auth func(*resty.Request)) (json.RawMessage, error) {
	start := time.Now()
	req := c.http.R().
		SetContext(ctx).
		SetBody(graphqlRequest{Query: query})
	auth(req)
	resp, err := req.Post(c.endpoint)
	metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, err := pager.UnwrapEnvelope(resp.Body())
	if resp.IsError() {
		var fe *pager.FetchError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s: %w", op, fe)
		}
		return nil, fmt.Errorf("%s: %w", op, &pager.FetchError{
			Messages: []string{fmt.Sprintf("%s failed: %s", op, resp.Status())},
		})
	}
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("query failed")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.log.Debug().Str("op", op).Dur("took", time.Since(start)).Msg("query ok")
	return data, nil
}

// gqlString renders s as a GraphQL string literal.
func gqlString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
