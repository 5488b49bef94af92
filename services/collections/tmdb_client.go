package collections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"reelstream/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	tmdbPosterSize   = "w500"
	tmdbBackdropSize = "w1280"

	requestTimeout = 8 * time.Second
	maxAttempts    = 2
	retryBaseDelay = 200 * time.Millisecond

	maxScalarLen  = 500
	maxElementLen = 200
)

var paramKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// upstreamError describes a failed upstream call. Status 0 means the request
// never produced a response (network failure or client-side timeout).
type upstreamError struct {
	status int
	path   string
	msg    string
}

func (e *upstreamError) Error() string {
	if e.status == 0 {
		return fmt.Sprintf("tmdb %s: %s", e.path, e.msg)
	}
	return fmt.Sprintf("tmdb %s: status %d", e.path, e.status)
}

// retryable reports whether a second attempt could plausibly succeed:
// network-level failures and 5xx responses qualify, 4xx never does.
func (e *upstreamError) retryable() bool {
	return e.status == 0 || e.status >= 500
}

// tmdbClient wraps the upstream API with pacing, bounded retries, parameter
// sanitization, and read-through response caching.
type tmdbClient struct {
	mu       sync.RWMutex
	apiKey   string
	language string

	httpc   *http.Client
	limiter *rate.Limiter
	cache   *responseCache
}

func newTMDBClient(apiKey, language string, httpc *http.Client, cache *responseCache, minInterval time.Duration) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: requestTimeout}
	}
	if strings.TrimSpace(language) == "" {
		language = "en-US"
	}
	if cache == nil {
		cache = newResponseCache(0, 0)
	}
	return &tmdbClient{
		apiKey:   strings.TrimSpace(apiKey),
		language: language,
		httpc:    httpc,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		cache:    cache,
	}
}

func (c *tmdbClient) setCredentials(apiKey, language string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(apiKey)
	if strings.TrimSpace(language) != "" {
		c.language = language
	}
}

func (c *tmdbClient) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.language
}

// get issues a GET against the upstream API and decodes the JSON body into v.
// Cached bodies are served without touching the network; only 200 responses
// are ever cached.
func (c *tmdbClient) get(ctx context.Context, apiPath string, params map[string]any, v any) error {
	apiPath = sanitizePath(apiPath)
	q := sanitizeParams(params)
	apiKey, language := c.credentials()
	q.Set("api_key", apiKey)
	q.Set("language", language)

	key := cacheKey(apiPath, q.Encode())
	if raw, ok := c.cache.get(key); ok {
		return json.Unmarshal(raw, v)
	}

	fullURL := tmdbBaseURL + apiPath + "?" + q.Encode()
	var raw []byte
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			body, err := c.fetchOnce(ctx, fullURL, apiPath)
			if err != nil {
				return err
			}
			raw = body
			return nil
		},
		retry.Attempts(maxAttempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * retryBaseDelay
		}),
		retry.RetryIf(func(err error) bool {
			var ue *upstreamError
			return errors.As(err, &ue) && ue.retryable()
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[tmdb] retrying %s (attempt %d/%d): %v", apiPath, n+2, maxAttempts, err)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}

	c.cache.set(key, raw)
	return json.Unmarshal(raw, v)
}

func (c *tmdbClient) fetchOnce(ctx context.Context, fullURL, apiPath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &upstreamError{status: 0, path: apiPath, msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &upstreamError{status: 0, path: apiPath, msg: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &upstreamError{status: resp.StatusCode, path: apiPath}
	}
	return body, nil
}

// sanitizePath strips empty, dot, and parent-directory segments and forces a
// rooted path, so interpolated ids can never rewrite the request target.
func sanitizePath(p string) string {
	var kept []string
	for _, seg := range strings.Split(p, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return "/" + strings.Join(kept, "/")
}

// sanitizeParams keeps only well-formed query parameters: keys must match
// paramKeyPattern, scalar values are truncated, string slices are truncated
// per element and comma-joined, and anything else is dropped.
func sanitizeParams(params map[string]any) url.Values {
	q := url.Values{}
	for key, value := range params {
		if !paramKeyPattern.MatchString(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			q.Set(key, truncate(v, maxScalarLen))
		case bool:
			q.Set(key, strconv.FormatBool(v))
		case int:
			q.Set(key, strconv.Itoa(v))
		case int64:
			q.Set(key, strconv.FormatInt(v, 10))
		case float64:
			q.Set(key, truncate(strconv.FormatFloat(v, 'f', -1, 64), maxScalarLen))
		case []string:
			parts := make([]string, 0, len(v))
			for _, el := range v {
				parts = append(parts, truncate(el, maxElementLen))
			}
			q.Set(key, strings.Join(parts, ","))
		default:
			// non-primitive values are dropped rather than rejected
		}
	}
	return q
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// buildImage converts an upstream image path into a fully qualified URL.
func buildImage(imagePath, size, imageType string) *models.Image {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return nil
	}
	return &models.Image{
		URL:  tmdbImageBaseURL + "/" + path.Join(size, strings.TrimPrefix(trimmed, "/")),
		Type: imageType,
	}
}
