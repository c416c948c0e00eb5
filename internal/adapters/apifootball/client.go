// Package apifootball implements the match source over the API-Football v3 HTTP API.
package apifootball

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/okian/harvester/internal/domain/harvest"
	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"
)

// Default upstream settings.
const (
	DefaultBaseURL = "https://v3.football.api-sports.io"
	DefaultHost    = "v3.football.api-sports.io"

	headerKey  = "x-rapidapi-key"
	headerHost = "x-rapidapi-host"

	pathFixtures = "/fixtures"
	pathPlayers  = "/fixtures/players"
)

// Client fetches fixtures and player statistics. Requests are paced by a
// token bucket; quota accounting is the caller's job.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     logger.Logger
}

var _ harvest.MatchSource = (*Client)(nil)

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	hc := resty.NewWithClient(o.httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader(headerHost, o.host).
		SetHeader("Accept", "application/json")
	if o.apiKey != "" {
		hc.SetHeader(headerKey, o.apiKey)
	}

	var limiter *rate.Limiter
	if o.requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.requestsPerMinute)), 1)
	}

	return &Client{http: hc, limiter: limiter, log: o.log}
}

// FetchMatches returns one page of a league season and whether more pages follow.
func (c *Client) FetchMatches(ctx context.Context, competitionID, season, page int) ([]model.RawMatch, bool, error) {
	params := map[string]string{
		"league": strconv.Itoa(competitionID),
		"season": strconv.Itoa(season),
	}
	if page > 1 {
		params["page"] = strconv.Itoa(page)
	}

	var env Envelope[Fixture]
	if err := c.get(ctx, pathFixtures, params, &env); err != nil {
		return nil, false, err
	}

	out := make([]model.RawMatch, 0, len(env.Response))
	for _, f := range env.Response {
		out = append(out, f.Raw())
	}
	return out, env.Paging.HasMore(), nil
}

// FetchPlayerStats returns the per-player statistics of one fixture.
func (c *Client) FetchPlayerStats(ctx context.Context, matchID int64) ([]model.RawPlayerStat, error) {
	var env Envelope[TeamPlayers]
	params := map[string]string{"fixture": strconv.FormatInt(matchID, 10)}
	if err := c.get(ctx, pathPlayers, params, &env); err != nil {
		return nil, err
	}

	var out []model.RawPlayerStat
	for _, t := range env.Response {
		out = append(out, t.Raw()...)
	}
	return out, nil
}

// get performs one request and classifies failures as quota, transient or
// permanent errors of the harvest package.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: GET %s: %v", harvest.ErrTransientFetch, path, err)
	}

	status := resp.StatusCode()
	c.log.Debug(ctx, "upstream response",
		logger.String("path", path),
		logger.Int("status", status),
		logger.Duration("elapsed", resp.Time()))

	switch {
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: GET %s: status %d", harvest.ErrTransientFetch, path, status)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%w: GET %s: status %d", harvest.ErrPermanentFetch, path, status)
	}

	var env struct {
		Errors jsoniter.RawMessage `json:"errors"`
	}
	body := resp.Body()
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: GET %s: decode: %v", harvest.ErrTransientFetch, path, err)
	}
	if errs := errorMap(env.Errors); len(errs) > 0 {
		return classify(path, errs)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: GET %s: decode: %v", harvest.ErrTransientFetch, path, err)
	}
	return nil
}

// classify maps the errors object of a 200 answer. "requests" means the
// account's daily allowance is spent; "rateLimit" is a per-minute throttle.
func classify(path string, errs map[string]string) error {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+errs[k])
	}
	msg := strings.Join(parts, "; ")

	if _, ok := errs["requests"]; ok {
		return fmt.Errorf("%w: GET %s: %s", harvest.ErrQuotaExhausted, path, msg)
	}
	if _, ok := errs["rateLimit"]; ok {
		return fmt.Errorf("%w: GET %s: %s", harvest.ErrTransientFetch, path, msg)
	}
	return fmt.Errorf("%w: GET %s: %s", harvest.ErrPermanentFetch, path, msg)
}
