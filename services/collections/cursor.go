package collections

import (
	"context"
	"math/rand"
	"strconv"
	"time"
)

// cursorConfig is the static option catalog the batch heuristics rotate
// through. It is injected at construction so tests can run against small
// deterministic catalogs.
type cursorConfig struct {
	GenreIDs    []int64
	SearchTerms []string
	ActorIDs    []int64
	DirectorIDs []int64
	CompanyIDs  []int64
	YearFloor   int
	MaxPages    int
}

func defaultCursorConfig() cursorConfig {
	return cursorConfig{
		GenreIDs:    []int64{28, 12, 16, 35, 80, 18, 14, 27, 9648, 10749, 878, 53},
		SearchTerms: defaultFranchiseTerms,
		ActorIDs:    []int64{500, 287, 6193, 3894, 62, 85, 2888, 18918, 1245, 74568},
		DirectorIDs: []int64{525, 488, 138, 108, 1032, 578, 2710, 510},
		CompanyIDs:  []int64{420, 174, 33, 4, 2, 5, 7, 12, 923, 1632},
		YearFloor:   1970,
		MaxPages:    100,
	}
}

// batchCursor carries all mutable crawl position between NextBatch calls:
// page counters, rotation indexes, and the set of collection ids already
// handed to the caller. Rotation indexes only ever increase; the position in
// each catalog is the index modulo the catalog length.
type batchCursor struct {
	cfg cursorConfig

	popularPage    int
	genreIdx       int
	searchIdx      int
	nowPlayingPage int
	upcomingPage   int
	useUpcoming    bool
	topRatedPage   int
	trendWeekPage  int
	trendDayPage   int
	actorIdx       int
	directorIdx    int
	companyIdx     int

	pagesFetched int
	rng          *rand.Rand
	seen         map[int64]struct{}
}

func newBatchCursor(cfg cursorConfig) *batchCursor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.YearFloor <= 0 {
		cfg.YearFloor = 1970
	}
	return &batchCursor{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		seen: make(map[int64]struct{}),
	}
}

type batchHeuristic struct {
	name  string
	fetch func(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error)
}

// batchHeuristics is the fixed priority order NextBatch walks. Cheap broad
// sources come first, narrow and random ones last.
var batchHeuristics = []batchHeuristic{
	{"popular-movies", fetchPopularPage},
	{"genre-rotation", fetchGenreRotation},
	{"random-year", fetchRandomYear},
	{"franchise-search", fetchSearchRotation},
	{"now-playing", fetchNowPlayingUpcoming},
	{"top-rated", fetchTopRated},
	{"trending-week", fetchTrendingWeek},
	{"trending-day", fetchTrendingDay},
	{"actor-filmography", fetchActorRotation},
	{"director-filmography", fetchDirectorRotation},
	{"studio-catalog", fetchCompanyRotation},
	{"deep-search", fetchDeepSearch},
}

func fetchPopularPage(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	cur.popularPage++
	var page pagedMovies
	err := s.client.get(ctx, "/movie/popular", map[string]any{"page": cur.popularPage}, &page)
	return page.Results, err
}

func fetchGenreRotation(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	if len(cur.cfg.GenreIDs) == 0 {
		return nil, nil
	}
	genre := cur.cfg.GenreIDs[cur.genreIdx%len(cur.cfg.GenreIDs)]
	pageNum := 1 + cur.genreIdx/len(cur.cfg.GenreIDs)
	cur.genreIdx++
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"with_genres": strconv.FormatInt(genre, 10),
		"sort_by":     "popularity.desc",
		"page":        pageNum,
	}, &page)
	return page.Results, err
}

func fetchRandomYear(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	span := time.Now().Year() - cur.cfg.YearFloor + 1
	if span < 1 {
		span = 1
	}
	year := cur.cfg.YearFloor + cur.rng.Intn(span)
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"primary_release_year": year,
		"sort_by":              "popularity.desc",
	}, &page)
	return page.Results, err
}

func fetchSearchRotation(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	if len(cur.cfg.SearchTerms) == 0 {
		return nil, nil
	}
	term := cur.cfg.SearchTerms[cur.searchIdx%len(cur.cfg.SearchTerms)]
	cur.searchIdx++
	var page pagedMovies
	err := s.client.get(ctx, "/search/movie", map[string]any{"query": term}, &page)
	return page.Results, err
}

// fetchNowPlayingUpcoming alternates between the two theatrical windows.
func fetchNowPlayingUpcoming(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	apiPath := "/movie/now_playing"
	var pageNum int
	if cur.useUpcoming {
		apiPath = "/movie/upcoming"
		cur.upcomingPage++
		pageNum = cur.upcomingPage
	} else {
		cur.nowPlayingPage++
		pageNum = cur.nowPlayingPage
	}
	cur.useUpcoming = !cur.useUpcoming
	var page pagedMovies
	err := s.client.get(ctx, apiPath, map[string]any{"page": pageNum}, &page)
	return page.Results, err
}

func fetchTopRated(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	cur.topRatedPage++
	var page pagedMovies
	err := s.client.get(ctx, "/movie/top_rated", map[string]any{"page": cur.topRatedPage}, &page)
	return page.Results, err
}

func fetchTrendingWeek(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	cur.trendWeekPage++
	var page pagedMovies
	err := s.client.get(ctx, "/trending/movie/week", map[string]any{"page": cur.trendWeekPage}, &page)
	return page.Results, err
}

func fetchTrendingDay(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	cur.trendDayPage++
	var page pagedMovies
	err := s.client.get(ctx, "/trending/movie/day", map[string]any{"page": cur.trendDayPage}, &page)
	return page.Results, err
}

func fetchActorRotation(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	if len(cur.cfg.ActorIDs) == 0 {
		return nil, nil
	}
	actor := cur.cfg.ActorIDs[cur.actorIdx%len(cur.cfg.ActorIDs)]
	cur.actorIdx++
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"with_cast": strconv.FormatInt(actor, 10),
		"sort_by":   "popularity.desc",
	}, &page)
	return page.Results, err
}

func fetchDirectorRotation(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	if len(cur.cfg.DirectorIDs) == 0 {
		return nil, nil
	}
	director := cur.cfg.DirectorIDs[cur.directorIdx%len(cur.cfg.DirectorIDs)]
	cur.directorIdx++
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"with_crew": strconv.FormatInt(director, 10),
		"sort_by":   "popularity.desc",
	}, &page)
	return page.Results, err
}

func fetchCompanyRotation(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	if len(cur.cfg.CompanyIDs) == 0 {
		return nil, nil
	}
	company := cur.cfg.CompanyIDs[cur.companyIdx%len(cur.cfg.CompanyIDs)]
	cur.companyIdx++
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"with_companies": strconv.FormatInt(company, 10),
		"sort_by":        "popularity.desc",
	}, &page)
	return page.Results, err
}

// fetchDeepSearch pulls a random page deep in the popularity ordering to
// surface groups the deterministic heuristics never reach.
func fetchDeepSearch(ctx context.Context, s *Service, cur *batchCursor) ([]movieRecord, error) {
	pageNum := 1 + cur.rng.Intn(500)
	var page pagedMovies
	err := s.client.get(ctx, "/discover/movie", map[string]any{
		"sort_by":        "popularity.desc",
		"vote_count.gte": 100,
		"page":           pageNum,
	}, &page)
	return page.Results, err
}
