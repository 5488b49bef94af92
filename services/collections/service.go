package collections

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelstream/config"
	"reelstream/models"
	"reelstream/utils/similarity"
)

var ErrQueryRequired = errors.New("search query is required")

const (
	popularScanSize  = 10
	genreSampleSize  = 5
	genresPerRun     = 3
	defaultBatchSize = 12
	maxBatchAttempts = 12

	defaultMaxResults      = 60
	defaultRunTimeout      = 45 * time.Second
	defaultFallbackTimeout = 15 * time.Second
	defaultStepDelay       = 40 * time.Millisecond
	defaultMinInterval     = 100 * time.Millisecond
)

var defaultFranchiseTerms = []string{
	"Star Wars", "Harry Potter", "James Bond", "The Lord of the Rings",
	"Fast and Furious", "Mission Impossible", "Jurassic Park", "The Matrix",
	"Indiana Jones", "Pirates of the Caribbean", "Terminator", "Alien",
	"Rocky", "Mad Max", "John Wick", "Toy Story",
}

// Service discovers movie collections by crawling the upstream API from
// several directions, resolving each hit into a full collection record, and
// caching the assembled result set.
type Service struct {
	client   *tmdbClient
	snapshot *snapshotCache

	cursorMu  sync.Mutex
	cursor    *batchCursor
	cursorCfg cursorConfig

	// runMu serializes full discovery runs; a caller that blocked on it
	// usually finds a fresh snapshot when it gets through.
	runMu       sync.Mutex
	genreCursor int

	progressMu sync.RWMutex
	progress   models.DiscoveryProgress

	franchiseTerms []string
	genreRotation  []int64

	maxResults      int
	runTimeout      time.Duration
	fallbackTimeout time.Duration
	stepDelay       time.Duration
}

func NewService(settings config.Settings) *Service {
	cache := newResponseCache(
		time.Duration(settings.Cache.ResponseTTLMinutes)*time.Minute,
		settings.Cache.ResponseMaxEntries,
	)
	minInterval := defaultMinInterval
	if settings.Discovery.MinRequestIntervalMs > 0 {
		minInterval = time.Duration(settings.Discovery.MinRequestIntervalMs) * time.Millisecond
	}
	client := newTMDBClient(settings.Metadata.TMDBAPIKey, settings.Metadata.Language, nil, cache, minInterval)

	cfg := defaultCursorConfig()
	s := &Service{
		client:          client,
		snapshot:        newSnapshotCache(time.Duration(settings.Cache.SnapshotTTLHours) * time.Hour),
		cursor:          newBatchCursor(cfg),
		cursorCfg:       cfg,
		franchiseTerms:  defaultFranchiseTerms,
		genreRotation:   cfg.GenreIDs,
		maxResults:      defaultMaxResults,
		runTimeout:      defaultRunTimeout,
		fallbackTimeout: defaultFallbackTimeout,
		stepDelay:       defaultStepDelay,
	}
	if settings.Discovery.MaxResults > 0 {
		s.maxResults = settings.Discovery.MaxResults
	}
	if settings.Discovery.TimeoutSeconds > 0 {
		s.runTimeout = time.Duration(settings.Discovery.TimeoutSeconds) * time.Second
	}
	if settings.Discovery.FallbackTimeoutSeconds > 0 {
		s.fallbackTimeout = time.Duration(settings.Discovery.FallbackTimeoutSeconds) * time.Second
	}
	if settings.Discovery.StepDelayMs > 0 {
		s.stepDelay = time.Duration(settings.Discovery.StepDelayMs) * time.Millisecond
	}
	return s
}

// UpdateCredentials swaps the upstream API key and language without a
// restart. Cached responses keyed under the old credentials age out on
// their own.
func (s *Service) UpdateCredentials(apiKey, language string) {
	s.client.setCredentials(apiKey, language)
	log.Printf("[collections] upstream credentials updated")
}

// runState accumulates one discovery run.
type runState struct {
	svc        *Service
	runID      string
	step       string
	scanned    int
	target     int
	degraded   bool
	found      map[int64]models.Collection
	onProgress func(models.DiscoveryProgress)
}

func (st *runState) full() bool {
	return st.target > 0 && len(st.found) >= st.target
}

func (st *runState) report(running bool) {
	p := models.DiscoveryProgress{
		RunID:    st.runID,
		Step:     st.step,
		Scanned:  st.scanned,
		Found:    len(st.found),
		Running:  running,
		Degraded: st.degraded,
	}
	st.svc.setProgress(p)
	if st.onProgress != nil {
		st.onProgress(p)
	}
}

// DiscoverAll returns the current collection catalog, running a full
// discovery crawl when the snapshot is cold or refresh is forced. The crawl
// is bounded by the run timeout; if it dies, a reduced fallback pass under a
// fresh short deadline salvages what it can, and the caller still gets a
// result rather than an error.
func (s *Service) DiscoverAll(ctx context.Context, maxResults int, forceRefresh bool, onProgress func(models.DiscoveryProgress)) ([]models.Collection, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	if !forceRefresh && s.snapshot.isValid() && s.snapshot.size() > 0 {
		return capList(s.snapshot.sorted(), maxResults), nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !forceRefresh && s.snapshot.isValid() && s.snapshot.size() > 0 {
		return capList(s.snapshot.sorted(), maxResults), nil
	}

	runID := uuid.NewString()
	log.Printf("[collections] discovery run %s starting (refresh=%v, target=%d)", runID, forceRefresh, maxResults)

	st := &runState{
		svc:        s,
		runID:      runID,
		step:       "starting",
		target:     maxResults,
		found:      make(map[int64]models.Collection),
		onProgress: onProgress,
	}
	st.report(true)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if err := s.runDiscovery(runCtx, st); err != nil {
		log.Printf("[collections] run %s degraded to fallback: %v", runID, err)
		s.fallbackDiscovery(ctx, st)
	}

	if len(st.found) > 0 {
		s.snapshot.replace(st.found)
	}
	st.step = "done"
	st.report(false)
	log.Printf("[collections] run %s finished: %d collections from %d scanned", runID, len(st.found), st.scanned)

	list := make([]models.Collection, 0, len(st.found))
	for _, col := range st.found {
		list = append(list, col)
	}
	sortCollections(list)
	return capList(list, maxResults), nil
}

func (s *Service) runDiscovery(ctx context.Context, st *runState) error {
	steps := []struct {
		label string
		run   func(context.Context, *runState) error
	}{
		{"popular", func(ctx context.Context, st *runState) error { return s.scanPopular(ctx, st, "popular") }},
		{"franchises", s.searchFranchises},
		{"genres", s.sampleGenres},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.full() {
			return nil
		}
		st.step = step.label
		if err := step.run(ctx, st); err != nil {
			return err
		}
		st.report(true)
	}
	return nil
}

// scanPopular walks the first popular page and resolves each movie's group.
func (s *Service) scanPopular(ctx context.Context, st *runState, label string) error {
	var page pagedMovies
	if err := s.client.get(ctx, "/movie/popular", map[string]any{"page": 1}, &page); err != nil {
		return err
	}
	s.politePause(ctx)

	records := page.Results
	if len(records) > popularScanSize {
		records = records[:popularScanSize]
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.full() {
			return nil
		}
		st.scanned++
		if col, ok := s.resolveNewCollection(ctx, rec.ID, st.has); ok {
			st.found[col.ID] = *col
		}
		st.step = label
		st.report(true)
	}
	return nil
}

// searchFranchises resolves the single best hit for each known franchise
// term. A failed term is logged and skipped; only a dead context aborts the
// step.
func (s *Service) searchFranchises(ctx context.Context, st *runState) error {
	for _, term := range s.franchiseTerms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.full() {
			return nil
		}
		var page pagedMovies
		if err := s.client.get(ctx, "/search/movie", map[string]any{"query": term}, &page); err != nil {
			log.Printf("[collections] franchise search %q failed: %v", term, err)
			s.politePause(ctx)
			continue
		}
		s.politePause(ctx)
		if len(page.Results) == 0 {
			continue
		}
		st.scanned++
		if col, ok := s.resolveNewCollection(ctx, page.Results[0].ID, st.has); ok {
			st.found[col.ID] = *col
		}
		st.report(true)
	}
	return nil
}

// sampleGenres resolves a few top titles from the next genres in the
// rotation. The rotation cursor survives across runs so successive runs
// cover different genres.
func (s *Service) sampleGenres(ctx context.Context, st *runState) error {
	if len(s.genreRotation) == 0 {
		return nil
	}
	for i := 0; i < genresPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.full() {
			return nil
		}
		genre := s.genreRotation[s.genreCursor%len(s.genreRotation)]
		s.genreCursor++

		var page pagedMovies
		if err := s.client.get(ctx, "/discover/movie", map[string]any{
			"with_genres": strconv.FormatInt(genre, 10),
			"sort_by":     "popularity.desc",
		}, &page); err != nil {
			log.Printf("[collections] genre %d sample failed: %v", genre, err)
			s.politePause(ctx)
			continue
		}
		s.politePause(ctx)

		records := page.Results
		if len(records) > genreSampleSize {
			records = records[:genreSampleSize]
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if st.full() {
				return nil
			}
			st.scanned++
			if col, ok := s.resolveNewCollection(ctx, rec.ID, st.has); ok {
				st.found[col.ID] = *col
			}
			st.report(true)
		}
	}
	return nil
}

// fallbackDiscovery is the reduced pass used when the full run times out or
// fails: one popular page under a fresh short deadline. Errors here only
// log; the caller keeps whatever was accumulated.
func (s *Service) fallbackDiscovery(parent context.Context, st *runState) {
	st.degraded = true
	st.step = "fallback"
	st.report(true)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.fallbackTimeout)
	defer cancel()
	if err := s.scanPopular(ctx, st, "fallback"); err != nil {
		log.Printf("[collections] run %s fallback failed: %v", st.runID, err)
	}
}

func (st *runState) has(id int64) bool {
	_, ok := st.found[id]
	return ok
}

// resolveNewCollection resolves the collection a movie belongs to. ok is
// false for movies outside any collection, groups already resolved, groups
// with fewer than two members, and any upstream failure along the way.
func (s *Service) resolveNewCollection(ctx context.Context, movieID int64, alreadyFound func(int64) bool) (*models.Collection, bool) {
	ref, err := s.movieCollectionRef(ctx, movieID)
	s.politePause(ctx)
	if err != nil {
		log.Printf("[collections] movie %d lookup failed: %v", movieID, err)
		return nil, false
	}
	if ref == nil {
		return nil, false
	}
	if alreadyFound(ref.ID) {
		return nil, false
	}
	col, err := s.CollectionDetail(ctx, ref.ID)
	s.politePause(ctx)
	if err != nil {
		return nil, false
	}
	if col.FilmCount < 2 {
		return nil, false
	}
	return col, true
}

// politePause spaces successive upstream fetches inside a crawl, on top of
// the client's own rate limiter.
func (s *Service) politePause(ctx context.Context) {
	if s.stepDelay <= 0 {
		return
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NextBatch accumulates up to batchSize collections not yet handed to this
// cursor's caller, walking the heuristic table in priority order and moving
// to the next heuristic whenever the current one stops producing new groups.
// Heuristic failures are logged and skipped; their rotation state still
// advances.
func (s *Service) NextBatch(ctx context.Context, batchSize int) (models.CollectionBatch, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	cur := s.cursor

	var batch []models.Collection
	hIdx := 0
	for attempts := 0; attempts < maxBatchAttempts && len(batch) < batchSize && hIdx < len(batchHeuristics); attempts++ {
		if err := ctx.Err(); err != nil {
			return models.CollectionBatch{Collections: batch, HasMore: true}, err
		}
		h := batchHeuristics[hIdx]
		records, err := h.fetch(ctx, s, cur)
		cur.pagesFetched++
		s.politePause(ctx)
		if err != nil {
			log.Printf("[collections] batch heuristic %s failed: %v", h.name, err)
			hIdx++
			continue
		}
		added := 0
		for _, rec := range records {
			if len(batch) >= batchSize {
				break
			}
			if err := ctx.Err(); err != nil {
				return models.CollectionBatch{Collections: batch, HasMore: true}, err
			}
			col, ok := s.resolveNewCollection(ctx, rec.ID, func(id int64) bool {
				_, dup := cur.seen[id]
				return dup
			})
			if !ok {
				continue
			}
			cur.seen[col.ID] = struct{}{}
			batch = append(batch, *col)
			added++
		}
		if added == 0 {
			hIdx++
		}
	}

	if batch == nil {
		batch = []models.Collection{}
	}
	hasMore := len(batch) > 0 || cur.pagesFetched < cur.cfg.MaxPages
	return models.CollectionBatch{Collections: batch, HasMore: hasMore}, nil
}

// SearchCollections resolves collections matching a free-text query, best
// title match first.
func (s *Service) SearchCollections(ctx context.Context, query string, limit int) ([]models.Collection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	if limit <= 0 {
		limit = 5
	}

	var resp pagedCollectionHits
	if err := s.client.get(ctx, "/search/collection", map[string]any{"query": query}, &resp); err != nil {
		return nil, err
	}

	hits := resp.Results
	sort.SliceStable(hits, func(i, j int) bool {
		return similarity.Score(hits[i].Name, query) > similarity.Score(hits[j].Name, query)
	})

	out := make([]models.Collection, 0, limit)
	for _, hit := range hits {
		if len(out) >= limit {
			break
		}
		col, err := s.CollectionDetail(ctx, hit.ID)
		s.politePause(ctx)
		if err != nil {
			continue
		}
		if col.FilmCount < 2 {
			continue
		}
		out = append(out, *col)
	}
	return out, nil
}

// SearchMedia searches movies and shows together, dropping person hits.
func (s *Service) SearchMedia(ctx context.Context, query string) ([]models.Entity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}

	var resp multiSearchResponse
	if err := s.client.get(ctx, "/search/multi", map[string]any{
		"query":         query,
		"include_adult": false,
	}, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Entity, 0, len(resp.Results))
	for _, raw := range resp.Results {
		rec, ok := decodeMediaRecord(raw)
		if !ok {
			continue
		}
		out = append(out, toEntity(rec))
	}
	return out, nil
}

// Snapshot returns the cached catalog without triggering a crawl.
func (s *Service) Snapshot() []models.Collection {
	return s.snapshot.sorted()
}

func (s *Service) Progress() models.DiscoveryProgress {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()
	return s.progress
}

func (s *Service) setProgress(p models.DiscoveryProgress) {
	s.progressMu.Lock()
	s.progress = p
	s.progressMu.Unlock()
}

// ClearCaches drops the snapshot, the response cache, and the batch cursor.
func (s *Service) ClearCaches() {
	s.snapshot.clear()
	s.client.cache.clear()
	s.cursorMu.Lock()
	s.cursor = newBatchCursor(s.cursorCfg)
	s.cursorMu.Unlock()
	log.Printf("[collections] caches cleared")
}

func capList(list []models.Collection, max int) []models.Collection {
	if max > 0 && len(list) > max {
		return list[:max]
	}
	return list
}
