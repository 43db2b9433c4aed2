// Package catalog fetches movie feature data from the external TMDb-style
// catalog API, with an optional Redis response cache in front of it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"

	"github.com/thebtf/reelrank/pkg/models"
)

const (
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Hour
)

// Config holds the catalog client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RedisAddr enables the response cache when non-empty.
	RedisAddr string
	CacheTTL  time.Duration
}

// Client talks to the catalog API. Responses are cached in Redis for the
// configured TTL; without a Redis address every call goes upstream.
type Client struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	pool     *redis.Pool
	cacheTTL time.Duration
	logger   zerolog.Logger

	genreMu  sync.Mutex
	genreMap map[int]string
}

// NewClient creates a catalog client. The Redis pool is created lazily per
// connection; a missing Redis server degrades to uncached fetches.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	c := &Client{
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   cfg.APIKey,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
	if cfg.RedisAddr != "" {
		c.pool = newRedisPool(cfg.RedisAddr)
	}
	return c
}

// Close releases the Redis pool, if any.
func (c *Client) Close() error {
	if c.pool != nil {
		return c.pool.Close()
	}
	return nil
}

func newRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
	}
}

// movieDetail is the catalog's single-movie payload.
type movieDetail struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Genres           []genre `json:"genres"`
	ReleaseDate      string  `json:"release_date"`
	Runtime          int     `json:"runtime"`
	OriginalLanguage string  `json:"original_language"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
}

type genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// listResponse is the catalog's paged list payload. List entries carry genre
// IDs only; names resolve through the genre list endpoint.
type listResponse struct {
	Page    int         `json:"page"`
	Results []listEntry `json:"results"`
}

type listEntry struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	GenreIDs         []int   `json:"genre_ids"`
	ReleaseDate      string  `json:"release_date"`
	OriginalLanguage string  `json:"original_language"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
}

type genreListResponse struct {
	Genres []genre `json:"genres"`
}

// FetchFeatures returns the feature data for one movie. Unknown movies map
// to models.ErrNotFound, upstream failures to models.ErrUpstreamUnavailable.
func (c *Client) FetchFeatures(ctx context.Context, movieID string) (*models.MovieFeatures, error) {
	body, err := c.get(ctx, "/movie/"+url.PathEscape(movieID), nil)
	if err != nil {
		return nil, err
	}

	var detail movieDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode movie %s: %w", movieID, err)
	}

	genres := make([]string, len(detail.Genres))
	for i, g := range detail.Genres {
		genres[i] = g.Name
	}
	return &models.MovieFeatures{
		ID:          strconv.FormatInt(detail.ID, 10),
		Title:       detail.Title,
		Genres:      genres,
		ReleaseYear: releaseYear(detail.ReleaseDate),
		Runtime:     detail.Runtime,
		Language:    detail.OriginalLanguage,
		Popularity:  detail.Popularity,
		Rating:      detail.VoteAverage,
	}, nil
}

// FetchPopular returns one page of the global popularity ranking.
func (c *Client) FetchPopular(ctx context.Context, page int) ([]*models.MovieFeatures, error) {
	return c.fetchList(ctx, "/movie/popular", page)
}

// FetchTrending returns one page of this week's trending movies.
func (c *Client) FetchTrending(ctx context.Context, page int) ([]*models.MovieFeatures, error) {
	return c.fetchList(ctx, "/trending/movie/week", page)
}

func (c *Client) fetchList(ctx context.Context, path string, page int) ([]*models.MovieFeatures, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{"page": {strconv.Itoa(page)}}
	body, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode list %s: %w", path, err)
	}

	genreNames, err := c.genres(ctx)
	if err != nil {
		// List entries without genre names still carry popularity and
		// rating, which is what the refresh job needs.
		c.logger.Warn().Err(err).Msg("Genre list unavailable, returning entries without genres")
		genreNames = nil
	}

	features := make([]*models.MovieFeatures, len(list.Results))
	for i, entry := range list.Results {
		var genres []string
		for _, id := range entry.GenreIDs {
			if name, ok := genreNames[id]; ok {
				genres = append(genres, name)
			}
		}
		features[i] = &models.MovieFeatures{
			ID:          strconv.FormatInt(entry.ID, 10),
			Title:       entry.Title,
			Genres:      genres,
			ReleaseYear: releaseYear(entry.ReleaseDate),
			Language:    entry.OriginalLanguage,
			Popularity:  entry.Popularity,
			Rating:      entry.VoteAverage,
		}
	}
	return features, nil
}

// genres resolves the catalog's genre ID to name mapping, fetched once per
// client lifetime.
func (c *Client) genres(ctx context.Context) (map[int]string, error) {
	c.genreMu.Lock()
	defer c.genreMu.Unlock()
	if c.genreMap != nil {
		return c.genreMap, nil
	}

	body, err := c.get(ctx, "/genre/movie/list", nil)
	if err != nil {
		return nil, err
	}
	var resp genreListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode genre list: %w", err)
	}

	genreMap := make(map[int]string, len(resp.Genres))
	for _, g := range resp.Genres {
		genreMap[g.ID] = g.Name
	}
	c.genreMap = genreMap
	return genreMap, nil
}

// get performs a cached GET against the catalog. The cache stores raw
// response bodies keyed by path and query; cache failures fall through to a
// direct fetch.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	cacheKey := "catalog:" + path + "?" + query.Encode()

	if body, ok := c.cacheGet(ctx, cacheKey); ok {
		return body, nil
	}

	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	requestURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request %s: %w", path, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", strings.TrimSpace(string(snippet))).
			Msg("Catalog request failed")
		return nil, fmt.Errorf("catalog status %d for %s: %w", resp.StatusCode, path, models.ErrUpstreamUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response %s: %w", path, models.ErrUpstreamUnavailable)
	}

	c.cacheSet(ctx, cacheKey, body)
	return body, nil
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if c.pool == nil {
		return nil, false
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Response cache unavailable")
		return nil, false
	}
	defer conn.Close()

	body, err := redis.Bytes(conn.Do("GET", key))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Response cache read failed")
		}
		return nil, false
	}
	return body, true
}

func (c *Client) cacheSet(ctx context.Context, key string, body []byte) {
	if c.pool == nil {
		return
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := conn.Do("SETEX", key, int(c.cacheTTL.Seconds()), body); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Response cache write failed")
	}
}

// releaseYear extracts the year from a catalog date string (YYYY-MM-DD).
// Unknown or malformed dates map to year 0, the unknown-era bucket.
func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
