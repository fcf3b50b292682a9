// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/urlguard/urlguard/internal/config"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/models"
)

const apiVersionPrefix = "/v4"

type httpServerAdapter struct {
	client     *resty.Client
	limiter    *rate.Limiter
	clientInfo models.ClientInfo
	maxRetries uint64
	log        *logger.Logger
}

// NewHTTPServerAdapter builds a [ServerAdapter] speaking the HTTP/JSON v4
// update protocol. The API key is attached to every request as the "key"
// query parameter. Requests are throttled with a client-side rate limiter and
// transparently retried with exponential backoff on network failures and 5xx
// responses.
func NewHTTPServerAdapter(apiCfg config.API, appCfg config.App, log *logger.Logger) (ServerAdapter, error) {
	if apiCfg.Key == "" {
		return nil, errors.New("api key is required")
	}
	if apiCfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}

	timeout := apiCfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := apiCfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(apiCfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", apiCfg.Key)

	return &httpServerAdapter{
		client:     cli,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		clientInfo: models.ClientInfo{ClientID: appCfg.ClientID, ClientVersion: appCfg.ClientVersion},
		maxRetries: uint64(max(apiCfg.MaxRetries, 0)),
		log:        log,
	}, nil
}

func (h *httpServerAdapter) ListThreatLists(ctx context.Context) ([]models.ThreatDescriptor, error) {
	var out models.ThreatListsResponse
	err := h.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(apiVersionPrefix + "/threatLists")
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("list threat lists: %w", err)
	}

	return out.ThreatLists, nil
}

func (h *httpServerAdapter) FetchUpdates(ctx context.Context, req models.FetchUpdatesRequest) (*models.FetchUpdatesResponse, error) {
	req.Client = h.clientInfo

	var out models.FetchUpdatesResponse
	err := h.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post(apiVersionPrefix + "/threatListUpdates:fetch")
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("fetch updates: %w", err)
	}

	return &out, nil
}

func (h *httpServerAdapter) FindFullHashes(ctx context.Context, req models.FindFullHashesRequest) (*models.FindFullHashesResponse, error) {
	req.Client = h.clientInfo

	var out models.FindFullHashesResponse
	err := h.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post(apiVersionPrefix + "/fullHashes:find")
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("find full hashes: %w", err)
	}

	return &out, nil
}

// do executes one API call with rate limiting and bounded retries, then
// decodes the JSON body into out. Network failures and 5xx responses are
// retried; every other error is returned as-is.
func (h *httpServerAdapter) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error), out any) error {
	backoff := retry.WithMaxRetries(h.maxRetries, retry.NewExponential(500*time.Millisecond))

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := send(h.client.R().SetContext(ctx))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrTransport, err))
		}
		if err := mapHTTPError(resp); err != nil {
			if errors.Is(err, ErrServerError) {
				return retry.RetryableError(err)
			}
			return err
		}

		body = resp.Body()
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	return nil
}
