package jgrants

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/httpclient"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

const (
	// DefaultBaseURL is the base URL for the jGrants public API.
	DefaultBaseURL = "https://api.jgrants-portal.go.jp/exp/v1/public"

	// DefaultRequestDelay separates consecutive keyword searches.
	DefaultRequestDelay = 2 * time.Second

	// DefaultDetailTTL is how long fetched details stay cached.
	DefaultDetailTTL = 24 * time.Hour

	// DefaultDetailSpacing is the minimum time between detail requests.
	DefaultDetailSpacing = 500 * time.Millisecond

	healthTimeout = 10 * time.Second

	// OperationSearch is the performance log name for SearchByKeywords
	OperationSearch = "search_by_keywords"
)

// Executor performs HTTP calls. *httpclient.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, url string) ([]byte, error)
	Head(ctx context.Context, url string, timeout time.Duration) (int, error)
}

// Client is a jGrants API client.
type Client struct {
	baseURL      string
	executor     Executor
	cache        interfaces.DetailCache
	fetchLog     interfaces.FetchRecorder
	tracker      interfaces.OperationTracker
	logger       arbor.ILogger
	requestDelay time.Duration
	detailTTL    time.Duration
	limiter      *rate.Limiter
	inflight     singleflight.Group
	validate     *validator.Validate
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithExecutor sets the HTTP executor.
func WithExecutor(executor Executor) ClientOption {
	return func(c *Client) {
		c.executor = executor
	}
}

// WithCache sets the detail cache.
func WithCache(cache interfaces.DetailCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithFetchRecorder sets where per-keyword search outcomes are written.
func WithFetchRecorder(recorder interfaces.FetchRecorder) ClientOption {
	return func(c *Client) {
		c.fetchLog = recorder
	}
}

// WithOperationTracker sets the tracker that times keyword searches.
func WithOperationTracker(tracker interfaces.OperationTracker) ClientOption {
	return func(c *Client) {
		c.tracker = tracker
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestDelay sets the delay between keyword searches.
func WithRequestDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.requestDelay = d
		}
	}
}

// WithDetailTTL sets how long details are cached.
func WithDetailTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl > 0 {
			c.detailTTL = ttl
		}
	}
}

// WithDetailSpacing sets the minimum spacing between detail requests. Zero disables spacing.
func WithDetailSpacing(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewClient creates a new jGrants API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		logger:       arbor.NewLogger(),
		requestDelay: DefaultRequestDelay,
		detailTTL:    DefaultDetailTTL,
		limiter:      rate.NewLimiter(rate.Every(DefaultDetailSpacing), 1),
		validate:     validator.New(),
		now:          time.Now,
		sleep:        common.SleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.executor == nil {
		c.executor = httpclient.NewClient(httpclient.WithLogger(c.logger))
	}

	return c
}

// SearchURL builds the list endpoint URL for a keyword
func (c *Client) SearchURL(keyword string, options SearchOptions) string {
	return c.baseURL + "/subsidies?" + BuildParams(keyword, options).Encode()
}

// BuildParams returns the required and optional search parameters
func BuildParams(keyword string, options SearchOptions) url.Values {
	opts := options.Normalize()

	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("sort", opts.Sort)
	params.Set("order", opts.Order)
	params.Set("acceptance", opts.Acceptance)

	setJoined := func(name string, values []string) {
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) > 0 {
			params.Set(name, strings.Join(cleaned, MultiValueSeparator))
		}
	}
	setJoined("use_purpose", opts.UsePurpose)
	setJoined("industry", opts.Industry)
	setJoined("target_area_search", opts.TargetArea)
	if opts.TargetNumberOfEmployees != "" {
		params.Set("target_number_of_employees", opts.TargetNumberOfEmployees)
	}

	return params
}

// Search runs SearchByKeywords with the same options for every keyword
func (c *Client) Search(ctx context.Context, keywords []string, options SearchOptions) ([]models.GrantSummary, error) {
	queries := make([]KeywordQuery, 0, len(keywords))
	for _, k := range keywords {
		queries = append(queries, KeywordQuery{Keyword: k, Options: options})
	}
	return c.SearchByKeywords(ctx, queries)
}

// SearchByKeywords issues one search per valid keyword and merges the
// results, keeping the first occurrence of each external ID. Invalid
// keywords and failed searches are logged and skipped; only context
// cancellation is returned as an error.
func (c *Client) SearchByKeywords(ctx context.Context, queries []KeywordQuery) ([]models.GrantSummary, error) {
	start := c.now()
	var op interfaces.TrackedOperation
	if c.tracker != nil {
		op = c.tracker.Track(OperationSearch)
	}

	valid := make([]KeywordQuery, 0, len(queries))
	for _, q := range queries {
		if err := ValidateKeyword(q.Keyword); err != nil {
			c.logger.Warn().Err(err).Str("keyword", q.Keyword).Msg("Skipping invalid keyword")
			continue
		}
		valid = append(valid, q)
	}

	seen := make(map[string]struct{})
	results := make([]models.GrantSummary, 0)
	requests := 0

	for i, q := range valid {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		requests++
		items, err := c.searchKeyword(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			c.recordFetch(ctx, q.Keyword, 0, 0, err)
		} else {
			fetchedAt := c.now()
			skipped := 0
			for _, item := range items {
				if item.ID == "" {
					skipped++
					continue
				}
				if _, dup := seen[item.ID]; dup {
					continue
				}
				seen[item.ID] = struct{}{}
				item.SourceKeyword = q.Keyword
				item.FetchedAt = fetchedAt
				results = append(results, item)
			}
			c.recordFetch(ctx, q.Keyword, len(items), skipped, nil)
		}

		if i < len(valid)-1 {
			if err := c.sleep(ctx, c.requestDelay); err != nil {
				return results, err
			}
		}
	}

	c.logger.Info().
		Int("keywords", len(valid)).
		Int("requests", requests).
		Int("results", len(results)).
		Dur("duration", c.now().Sub(start)).
		Msg("Keyword search completed")

	if op != nil {
		op.Finish(ctx, true, map[string]int64{
			"keyword_count":  int64(len(valid)),
			"total_requests": int64(requests),
			"results_count":  int64(len(results)),
		})
	}

	return results, nil
}

// listResponse is the search endpoint envelope
type listResponse struct {
	Metadata *struct {
		Resultset *struct {
			Count *int `json:"count" validate:"required"`
		} `json:"resultset" validate:"required"`
	} `json:"metadata" validate:"required"`
	Result []models.GrantSummary `json:"result" validate:"required"`
}

// detailResponse is the detail endpoint envelope
type detailResponse struct {
	Result []json.RawMessage `json:"result" validate:"required,min=1"`
}

// detailIdentity holds the fields every detail must carry
type detailIdentity struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (c *Client) searchKeyword(ctx context.Context, q KeywordQuery) ([]models.GrantSummary, error) {
	body, err := c.executor.Execute(ctx, c.SearchURL(q.Keyword, q.Options))
	if err != nil {
		c.logger.Error().Err(err).Str("keyword", q.Keyword).Msg("Keyword search failed")
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error().Err(err).Str("keyword", q.Keyword).Msg("Failed to decode search response")
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(&resp); err != nil {
		c.logger.Error().Err(err).Str("keyword", q.Keyword).Msg("Search response is missing required fields")
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	c.logger.Debug().
		Str("keyword", q.Keyword).
		Int("count", *resp.Metadata.Resultset.Count).
		Int("returned", len(resp.Result)).
		Msg("Keyword search returned results")

	return resp.Result, nil
}

// recordFetch logs one keyword search. A response whose results were
// partly unusable is recorded as partial.
func (c *Client) recordFetch(ctx context.Context, keyword string, count, skipped int, err error) {
	if c.fetchLog == nil {
		return
	}
	entry := &models.FetchLogEntry{
		Keyword:      keyword,
		ResultsCount: count,
		Status:       models.FetchStatusSuccess,
	}
	switch {
	case err != nil:
		entry.Status = models.FetchStatusError
		entry.ErrorMessage = err.Error()
	case skipped > 0:
		entry.Status = models.FetchStatusPartial
		entry.ErrorMessage = fmt.Sprintf("%d results without id skipped", skipped)
	}
	c.fetchLog.RecordFetch(ctx, entry)
}

// CacheKey derives the detail cache key for an external ID
func CacheKey(externalID string) string {
	sum := md5.Sum([]byte("grant_detail_" + externalID))
	return hex.EncodeToString(sum[:])
}

// ValidateID checks an external ID is non-empty and at most 18 characters
func ValidateID(externalID string) error {
	if externalID == "" || utf8.RuneCountInString(externalID) > models.MaxExternalIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidID, externalID)
	}
	return nil
}

// FetchDetail returns the detail for an external ID, or nil on any failure.
// Failures are logged.
func (c *Client) FetchDetail(ctx context.Context, externalID string) *models.GrantDetail {
	detail, err := c.FetchDetailErr(ctx, externalID)
	if err != nil {
		c.logger.Warn().Err(err).Str("grant_id", externalID).Msg("Grant detail unavailable")
		return nil
	}
	return detail
}

// FetchDetailErr is FetchDetail with the failure cause.
// Concurrent calls for the same ID share one upstream request.
func (c *Client) FetchDetailErr(ctx context.Context, externalID string) (*models.GrantDetail, error) {
	if err := ValidateID(externalID); err != nil {
		return nil, err
	}

	key := CacheKey(externalID)
	if detail := c.cachedDetail(ctx, key, externalID); detail != nil {
		return detail, nil
	}

	v, err, _ := c.inflight.Do(externalID, func() (interface{}, error) {
		return c.fetchDetail(ctx, key, externalID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GrantDetail), nil
}

func (c *Client) cachedDetail(ctx context.Context, key, externalID string) *models.GrantDetail {
	if c.cache == nil {
		return nil
	}

	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("grant_id", externalID).Msg("Detail cache read failed")
		return nil
	}
	if !ok {
		return nil
	}

	detail, err := decodeDetail(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("grant_id", externalID).Msg("Ignoring unreadable cached detail")
		return nil
	}

	c.logger.Trace().Str("grant_id", externalID).Msg("Detail cache hit")
	return detail
}

func (c *Client) fetchDetail(ctx context.Context, key, externalID string) (*models.GrantDetail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.executor.Execute(ctx, c.baseURL+"/subsidies/id/"+url.PathEscape(externalID))
	if err != nil {
		return nil, err
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	raw := resp.Result[0]
	var identity detailIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(&identity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	detail, err := decodeDetail(raw)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, raw, c.detailTTL); err != nil {
			c.logger.Warn().Err(err).Str("grant_id", externalID).Msg("Failed to cache grant detail")
		}
	}

	return detail, nil
}

func decodeDetail(raw []byte) (*models.GrantDetail, error) {
	var detail models.GrantDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	detail.Raw = append(json.RawMessage(nil), raw...)
	return &detail, nil
}

// CheckHealth reports whether the list endpoint answers a HEAD with 200
func (c *Client) CheckHealth(ctx context.Context) bool {
	status, err := c.executor.Head(ctx, c.baseURL+"/subsidies", healthTimeout)
	if err != nil {
		c.logger.Warn().Err(err).Msg("API health check failed")
		return false
	}
	return status == http.StatusOK
}

// IsNotFound reports whether err means the upstream has no such grant
func IsNotFound(err error) bool {
	return errors.Is(err, httpclient.ErrNotFound)
}
