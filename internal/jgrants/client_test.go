package jgrants

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/grantpost/internal/httpclient"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// memoryCache is a map-backed DetailCache
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	m.puts++
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) SweepExpired(ctx context.Context) (int, error) { return 0, nil }

func (m *memoryCache) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

type recorder struct {
	mu          sync.Mutex
	fetches     []*models.FetchLogEntry
	performance []*models.PerformanceLogEntry
}

func (r *recorder) RecordFetch(ctx context.Context, entry *models.FetchLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, entry)
}

func (r *recorder) Track(operation string) interfaces.TrackedOperation {
	return &trackedOperation{recorder: r, name: operation}
}

type trackedOperation struct {
	recorder *recorder
	name     string
}

func (t *trackedOperation) Finish(ctx context.Context, success bool, details map[string]int64) *models.PerformanceLogEntry {
	entry := &models.PerformanceLogEntry{Operation: t.name, Success: success, Details: details}
	t.recorder.mu.Lock()
	defer t.recorder.mu.Unlock()
	t.recorder.performance = append(t.recorder.performance, entry)
	return entry
}

func listBody(ids ...string) string {
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, fmt.Sprintf(`{"id":%q,"name":"name-%s","title":"title-%s"}`, id, id, id))
	}
	return fmt.Sprintf(`{"metadata":{"type":"application/json","resultset":{"count":%d}},"result":[%s]}`, len(ids), strings.Join(items, ","))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	executor := httpclient.NewClient(
		httpclient.WithInitialBackoff(time.Millisecond),
		httpclient.WithMaxRetries(2),
	)
	base := []ClientOption{
		WithBaseURL(server.URL),
		WithExecutor(executor),
		WithRequestDelay(0),
		WithDetailSpacing(0),
	}
	return NewClient(append(base, opts...)...), server
}

func TestSearchByKeywords_DeduplicatesFirstWins(t *testing.T) {
	rec := &recorder{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("keyword") {
		case "創業":
			fmt.Fprint(w, listBody("a1", "shared"))
		case "販路":
			fmt.Fprint(w, listBody("shared", "b1"))
		}
	}, WithFetchRecorder(rec), WithOperationTracker(rec))

	results, err := client.Search(context.Background(), []string{"創業", "販路"}, SearchOptions{})
	require.NoError(t, err)

	require.Len(t, results, 3)
	bySource := map[string]string{}
	for _, r := range results {
		bySource[r.ID] = r.SourceKeyword
		assert.False(t, r.FetchedAt.IsZero())
	}
	assert.Equal(t, "創業", bySource["shared"])
	assert.Equal(t, "創業", bySource["a1"])
	assert.Equal(t, "販路", bySource["b1"])

	require.Len(t, rec.fetches, 2)
	assert.Equal(t, models.FetchStatusSuccess, rec.fetches[0].Status)
	assert.Equal(t, 2, rec.fetches[1].ResultsCount)

	require.Len(t, rec.performance, 1)
	assert.Equal(t, OperationSearch, rec.performance[0].Operation)
	assert.Equal(t, int64(3), rec.performance[0].Details["results_count"])
	assert.Equal(t, int64(2), rec.performance[0].Details["total_requests"])
}

func TestSearchByKeywords_SkipsInvalidAndMalformed(t *testing.T) {
	var calls int32
	rec := &recorder{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("keyword") {
		case "malformed":
			fmt.Fprint(w, `{"result":[]}`)
		case "broken":
			w.WriteHeader(http.StatusBadRequest)
		default:
			fmt.Fprint(w, listBody("ok1"))
		}
	}, WithFetchRecorder(rec))

	results, err := client.Search(context.Background(), []string{"bad keyword", "x", "malformed", "broken", "valid"}, SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, results, 1)
	assert.Equal(t, "ok1", results[0].ID)

	require.Len(t, rec.fetches, 3)
	assert.Equal(t, models.FetchStatusError, rec.fetches[0].Status)
	assert.Equal(t, models.FetchStatusError, rec.fetches[1].Status)
	assert.Equal(t, models.FetchStatusSuccess, rec.fetches[2].Status)
}

func TestSearchByKeywords_RecordsPartialWhenResultsLackID(t *testing.T) {
	rec := &recorder{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metadata":{"resultset":{"count":2}},"result":[{"id":"ok1","title":"t"},{"title":"no id"}]}`)
	}, WithFetchRecorder(rec))

	results, err := client.Search(context.Background(), []string{"創業"}, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Len(t, rec.fetches, 1)
	assert.Equal(t, models.FetchStatusPartial, rec.fetches[0].Status)
	assert.Equal(t, 2, rec.fetches[0].ResultsCount)
	assert.Contains(t, rec.fetches[0].ErrorMessage, "1 results")
}

func TestSearchByKeywords_DelayBetweenKeywordsOnly(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listBody())
	}, WithRequestDelay(time.Second))

	var sleeps []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err := client.Search(context.Background(), []string{"創業", "販路", "海外"}, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
}

func TestSearchByKeywords_PassesPerKeywordOptions(t *testing.T) {
	var industries []string
	var mu sync.Mutex
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		industries = append(industries, r.URL.Query().Get("industry"))
		mu.Unlock()
		fmt.Fprint(w, listBody())
	})

	_, err := client.SearchByKeywords(context.Background(), []KeywordQuery{
		{Keyword: "製造業", Options: SearchOptions{Industry: []string{"製造業"}}},
		{Keyword: "創業", Options: SearchOptions{}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"製造業", ""}, industries)
}

func detailBody(id, name string) string {
	return fmt.Sprintf(`{"metadata":{"resultset":{"count":1}},"result":[{"id":%q,"name":%q,"title":"IT導入支援","detail":"<p>概要</p>","subsidy_max_limit":4500000}]}`, id, name)
}

func TestFetchDetail_CachesSuccessfulDetail(t *testing.T) {
	var calls int32
	cache := newMemoryCache()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/subsidies/id/a0WJ200000CDR9HMAX", r.URL.Path)
		fmt.Fprint(w, detailBody("a0WJ200000CDR9HMAX", "IT導入補助金"))
	}, WithCache(cache))

	ctx := context.Background()
	first := client.FetchDetail(ctx, "a0WJ200000CDR9HMAX")
	require.NotNil(t, first)
	assert.Equal(t, "IT導入補助金", first.Name)
	assert.Equal(t, int64(4500000), first.SubsidyMaxLimit)
	assert.NotEmpty(t, first.Raw)

	second := client.FetchDetail(ctx, "a0WJ200000CDR9HMAX")
	require.NotNil(t, second)
	assert.Equal(t, first.Name, second.Name)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.puts)
	_, ok, _ := cache.Get(ctx, CacheKey("a0WJ200000CDR9HMAX"))
	assert.True(t, ok)
}

func TestFetchDetail_RejectsBadIDs(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	assert.Nil(t, client.FetchDetail(context.Background(), ""))
	assert.Nil(t, client.FetchDetail(context.Background(), strings.Repeat("a", 19)))

	_, err := client.FetchDetailErr(context.Background(), strings.Repeat("a", 19))
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestValidateID_CountsCharacters(t *testing.T) {
	assert.NoError(t, ValidateID("a0WJ200000CDR9HMAX"))
	assert.NoError(t, ValidateID("補助金補助金補助金補"))
	assert.NoError(t, ValidateID(strings.Repeat("補", 18)))
	assert.ErrorIs(t, ValidateID(strings.Repeat("補", 19)), ErrInvalidID)
	assert.ErrorIs(t, ValidateID(""), ErrInvalidID)
}

func TestFetchDetail_InvalidShapeNotCached(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty result", `{"metadata":{"resultset":{"count":0}},"result":[]}`},
		{"missing result", `{"metadata":{"resultset":{"count":0}}}`},
		{"missing name", `{"result":[{"id":"abc"}]}`},
		{"not json", `<html></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMemoryCache()
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}, WithCache(cache))

			detail, err := client.FetchDetailErr(context.Background(), "abc")
			assert.Nil(t, detail)
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Equal(t, 0, cache.puts)
		})
	}
}

func TestFetchDetail_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchDetailErr(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestCacheKey_Deterministic(t *testing.T) {
	assert.Equal(t, CacheKey("abc"), CacheKey("abc"))
	assert.NotEqual(t, CacheKey("abc"), CacheKey("abd"))
	assert.Len(t, CacheKey("abc"), 32)
}

func TestCheckHealth(t *testing.T) {
	healthy, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/subsidies", r.URL.Path)
	})
	assert.True(t, healthy.CheckHealth(context.Background()))

	unhealthy, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.False(t, unhealthy.CheckHealth(context.Background()))
}
