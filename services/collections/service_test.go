package collections

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"reelstream/models"
)

// countingTransport wraps a per-path responder and tallies upstream calls.
type countingTransport struct {
	mu      sync.Mutex
	counts  map[string]int
	respond func(req *http.Request) (*http.Response, error)
}

func newCountingTransport(respond func(req *http.Request) (*http.Response, error)) *countingTransport {
	return &countingTransport{counts: make(map[string]int), respond: respond}
}

func (c *countingTransport) roundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.counts[req.URL.Path]++
	c.mu.Unlock()
	return c.respond(req)
}

func (c *countingTransport) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

func (c *countingTransport) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

func discoveryUpstream(req *http.Request) (*http.Response, error) {
	switch req.URL.Path {
	case "/3/movie/popular":
		return jsonResponse(http.StatusOK, `{"page":1,"results":[
			{"id": 101, "title": "Alpha One", "release_date": "2001-01-01", "genre_ids": [28]},
			{"id": 102, "title": "Alpha Two", "release_date": "2003-05-05", "genre_ids": [28]},
			{"id": 103, "title": "Loner", "release_date": "2010-01-01"}
		]}`), nil
	case "/3/movie/101":
		return jsonResponse(http.StatusOK, `{"id":101,"title":"Alpha One","release_date":"2001-01-01",
			"runtime":100,"genres":[{"id":28,"name":"Action"}],
			"belongs_to_collection":{"id":900,"name":"Alpha Collection"}}`), nil
	case "/3/movie/102":
		return jsonResponse(http.StatusOK, `{"id":102,"title":"Alpha Two","release_date":"2003-05-05",
			"runtime":110,"genres":[{"id":28,"name":"Action"}],
			"belongs_to_collection":{"id":900,"name":"Alpha Collection"}}`), nil
	case "/3/movie/103":
		return jsonResponse(http.StatusOK, `{"id":103,"title":"Loner","release_date":"2010-01-01","runtime":90}`), nil
	case "/3/movie/104":
		return jsonResponse(http.StatusOK, `{"id":104,"title":"Alpha Three","release_date":"2005-09-09",
			"runtime":130,"genres":[{"id":12,"name":"Adventure"}],
			"belongs_to_collection":{"id":900,"name":"Alpha Collection"}}`), nil
	case "/3/collection/900":
		return jsonResponse(http.StatusOK, `{"id":900,"name":"Alpha Collection","overview":"Three films.","parts":[
			{"id": 101, "title": "Alpha One", "release_date": "2001-01-01"},
			{"id": 102, "title": "Alpha Two", "release_date": "2003-05-05"},
			{"id": 104, "title": "Alpha Three", "release_date": "2005-09-09"}
		]}`), nil
	default:
		return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
	}
}

func TestDiscoverAllResolvesCollections(t *testing.T) {
	transport := newCountingTransport(discoveryUpstream)
	svc := newTestService(transport.roundTrip)

	var progressUpdates []models.DiscoveryProgress
	list, err := svc.DiscoverAll(context.Background(), 0, false, func(p models.DiscoveryProgress) {
		progressUpdates = append(progressUpdates, p)
	})
	if err != nil {
		t.Fatalf("DiscoverAll failed: %v", err)
	}

	if len(list) != 1 {
		t.Fatalf("expected exactly one collection, got %d", len(list))
	}
	col := list[0]
	if col.ID != 900 || col.Name != "Alpha Collection" {
		t.Fatalf("unexpected collection: %+v", col)
	}
	if col.FilmCount != 3 || col.Type != models.CollectionTypeTrilogy {
		t.Errorf("expected trilogy of 3, got count=%d type=%s", col.FilmCount, col.Type)
	}
	if col.TotalRuntimeMins != 340 {
		t.Errorf("expected total runtime 340, got %d", col.TotalRuntimeMins)
	}

	// both Alpha movies point at the same group; it must be resolved once
	if n := transport.count("/3/collection/900"); n != 1 {
		t.Errorf("expected a single collection fetch, got %d", n)
	}

	if len(progressUpdates) == 0 {
		t.Fatal("expected progress updates during the run")
	}
	last := progressUpdates[len(progressUpdates)-1]
	if last.Running {
		t.Error("final progress update should mark the run finished")
	}
	if last.Found != 1 {
		t.Errorf("final progress should report 1 found, got %d", last.Found)
	}
	if last.RunID == "" {
		t.Error("expected a run id on progress updates")
	}
}

func TestDiscoverAllServesSnapshotWhenFresh(t *testing.T) {
	transport := newCountingTransport(discoveryUpstream)
	svc := newTestService(transport.roundTrip)

	var firstRunID string
	first, err := svc.DiscoverAll(context.Background(), 0, false, func(p models.DiscoveryProgress) {
		firstRunID = p.RunID
	})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	callsAfterFirst := transport.total()

	second, err := svc.DiscoverAll(context.Background(), 0, false, func(p models.DiscoveryProgress) {
		t.Errorf("snapshot hit should not start a run, got progress for %s", p.RunID)
	})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if transport.total() != callsAfterFirst {
		t.Errorf("expected snapshot hit without upstream traffic, calls went %d -> %d",
			callsAfterFirst, transport.total())
	}
	if len(second) != len(first) || second[0].ID != first[0].ID {
		t.Errorf("snapshot result differs from crawl result")
	}

	// forced refresh must bypass the snapshot and start a new run
	var refreshRunID string
	if _, err := svc.DiscoverAll(context.Background(), 0, true, func(p models.DiscoveryProgress) {
		refreshRunID = p.RunID
	}); err != nil {
		t.Fatalf("forced refresh failed: %v", err)
	}
	if refreshRunID == "" || refreshRunID == firstRunID {
		t.Errorf("expected forced refresh to run a new crawl, run ids %q -> %q", firstRunID, refreshRunID)
	}
}

func TestDiscoverAllHonorsMaxResults(t *testing.T) {
	transport := newCountingTransport(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/movie/popular":
			return jsonResponse(http.StatusOK, `{"page":1,"results":[
				{"id": 201, "title": "First Franchise"},
				{"id": 202, "title": "Second Franchise"}
			]}`), nil
		case "/3/movie/201":
			return jsonResponse(http.StatusOK, `{"id":201,"title":"First Franchise","runtime":100,
				"belongs_to_collection":{"id":910,"name":"First Group"}}`), nil
		case "/3/movie/202":
			return jsonResponse(http.StatusOK, `{"id":202,"title":"Second Franchise","runtime":100,
				"belongs_to_collection":{"id":920,"name":"Second Group"}}`), nil
		case "/3/collection/910":
			return jsonResponse(http.StatusOK, `{"id":910,"name":"First Group","parts":[
				{"id":201,"title":"First Franchise"},{"id":211,"title":"First Sequel"}]}`), nil
		case "/3/collection/920":
			return jsonResponse(http.StatusOK, `{"id":920,"name":"Second Group","parts":[
				{"id":202,"title":"Second Franchise"},{"id":212,"title":"Second Sequel"}]}`), nil
		case "/3/movie/211", "/3/movie/212":
			return jsonResponse(http.StatusOK, `{"id":211,"title":"Sequel","runtime":90}`), nil
		default:
			return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
		}
	})
	svc := newTestService(transport.roundTrip)

	list, err := svc.DiscoverAll(context.Background(), 1, false, nil)
	if err != nil {
		t.Fatalf("DiscoverAll failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected crawl capped at 1 collection, got %d", len(list))
	}
	if n := transport.count("/3/collection/920"); n != 0 {
		t.Errorf("expected crawl to stop before resolving the second group, got %d fetches", n)
	}
}

func TestDiscoverAllExcludesSingletonGroups(t *testing.T) {
	transport := newCountingTransport(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/movie/popular":
			return jsonResponse(http.StatusOK, `{"page":1,"results":[{"id": 301, "title": "One Off"}]}`), nil
		case "/3/movie/301":
			return jsonResponse(http.StatusOK, `{"id":301,"title":"One Off","runtime":100,
				"belongs_to_collection":{"id":930,"name":"Single Entry"}}`), nil
		case "/3/collection/930":
			return jsonResponse(http.StatusOK, `{"id":930,"name":"Single Entry","parts":[{"id":301,"title":"One Off"}]}`), nil
		default:
			return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
		}
	})
	svc := newTestService(transport.roundTrip)

	list, err := svc.DiscoverAll(context.Background(), 0, false, nil)
	if err != nil {
		t.Fatalf("DiscoverAll failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected singleton group to be excluded, got %d collections", len(list))
	}
}

func TestDiscoverAllFallsBackOnFailure(t *testing.T) {
	transport := newCountingTransport(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"status_message":"gone"}`), nil
	})
	svc := newTestService(transport.roundTrip)

	list, err := svc.DiscoverAll(context.Background(), 0, false, nil)
	if err != nil {
		t.Fatalf("expected fallback to swallow the failure, got %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(list))
	}

	p := svc.Progress()
	if !p.Degraded {
		t.Error("expected degraded flag after fallback")
	}
	if p.Running {
		t.Error("expected run to be finished")
	}

	// the primary pass and the fallback pass both hit the popular feed
	if n := transport.count("/3/movie/popular"); n != 2 {
		t.Errorf("expected 2 popular fetches (primary + fallback), got %d", n)
	}

	// a failed run must not mark the snapshot fresh
	if svc.snapshot.isValid() {
		t.Error("expected snapshot to stay cold after a failed run")
	}
}

func TestDiscoverAllUsesFranchiseAndGenreSteps(t *testing.T) {
	transport := newCountingTransport(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/3/movie/popular":
			return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
		case req.URL.Path == "/3/search/movie":
			if q := req.URL.Query().Get("query"); q != "Alpha Term" {
				return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
			}
			return jsonResponse(http.StatusOK, `{"page":1,"results":[{"id":401,"title":"Alpha Term"}]}`), nil
		case req.URL.Path == "/3/discover/movie":
			return jsonResponse(http.StatusOK, `{"page":1,"results":[{"id":402,"title":"Genre Pick"}]}`), nil
		case req.URL.Path == "/3/movie/401":
			return jsonResponse(http.StatusOK, `{"id":401,"title":"Alpha Term","runtime":100,
				"belongs_to_collection":{"id":940,"name":"Term Group"}}`), nil
		case req.URL.Path == "/3/movie/402":
			return jsonResponse(http.StatusOK, `{"id":402,"title":"Genre Pick","runtime":100,
				"belongs_to_collection":{"id":950,"name":"Genre Group"}}`), nil
		case req.URL.Path == "/3/collection/940":
			return jsonResponse(http.StatusOK, `{"id":940,"name":"Term Group","parts":[
				{"id":401,"title":"Alpha Term"},{"id":411,"title":"Alpha Term II"}]}`), nil
		case req.URL.Path == "/3/collection/950":
			return jsonResponse(http.StatusOK, `{"id":950,"name":"Genre Group","parts":[
				{"id":402,"title":"Genre Pick"},{"id":412,"title":"Genre Pick II"}]}`), nil
		case req.URL.Path == "/3/movie/411", req.URL.Path == "/3/movie/412":
			return jsonResponse(http.StatusOK, `{"id":411,"title":"Sequel","runtime":90}`), nil
		default:
			return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
		}
	})
	svc := newTestService(transport.roundTrip)
	svc.franchiseTerms = []string{"Alpha Term"}
	svc.genreRotation = []int64{28}

	list, err := svc.DiscoverAll(context.Background(), 0, false, nil)
	if err != nil {
		t.Fatalf("DiscoverAll failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected groups from both steps, got %d", len(list))
	}

	found := map[int64]bool{}
	for _, col := range list {
		found[col.ID] = true
	}
	if !found[940] || !found[950] {
		t.Errorf("expected collections 940 and 950, got %v", found)
	}
}

func TestSearchMediaMixedKinds(t *testing.T) {
	svc := newTestService(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/3/search/multi" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"page":1,"results":[
			{"media_type":"movie","id":1,"title":"A Film","release_date":"2020-01-01"},
			{"media_type":"tv","id":2,"name":"A Series","first_air_date":"2011-03-03"},
			{"media_type":"person","id":3,"name":"An Actor"}
		]}`), nil
	})

	results, err := svc.SearchMedia(context.Background(), "a query")
	if err != nil {
		t.Fatalf("SearchMedia failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected person hit dropped, got %d results", len(results))
	}
	if results[0].Kind != models.EntityKindMovie || results[0].Title != "A Film" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Kind != models.EntityKindShow || results[1].ReleaseDate != "2011-03-03" {
		t.Errorf("unexpected second result: %+v", results[1])
	}

	if _, err := svc.SearchMedia(context.Background(), "   "); !errors.Is(err, ErrQueryRequired) {
		t.Errorf("expected ErrQueryRequired for blank query, got %v", err)
	}
}

func TestSearchCollectionsRanksAndResolves(t *testing.T) {
	transport := newCountingTransport(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/search/collection":
			// worse match deliberately listed first
			return jsonResponse(http.StatusOK, `{"page":1,"results":[
				{"id":41,"name":"Star Trek Collection"},
				{"id":42,"name":"Star Wars Collection"}
			]}`), nil
		case "/3/collection/42":
			return jsonResponse(http.StatusOK, `{"id":42,"name":"Star Wars Collection","parts":[
				{"id":421,"title":"Episode IV","release_date":"1977-05-25"},
				{"id":422,"title":"Episode V","release_date":"1980-05-21"}]}`), nil
		case "/3/movie/421", "/3/movie/422":
			return jsonResponse(http.StatusOK, `{"id":421,"title":"Episode","runtime":120}`), nil
		default:
			return jsonResponse(http.StatusOK, `{"page":1,"results":[]}`), nil
		}
	})
	svc := newTestService(transport.roundTrip)

	results, err := svc.SearchCollections(context.Background(), "Star Wars", 1)
	if err != nil {
		t.Fatalf("SearchCollections failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != 42 {
		t.Fatalf("expected best match 42 first, got %+v", results)
	}
	if n := transport.count("/3/collection/41"); n != 0 {
		t.Errorf("expected limit to stop before resolving the weaker hit, got %d fetches", n)
	}

	if _, err := svc.SearchCollections(context.Background(), "", 5); !errors.Is(err, ErrQueryRequired) {
		t.Errorf("expected ErrQueryRequired, got %v", err)
	}
}

func TestClearCachesResetsEverything(t *testing.T) {
	transport := newCountingTransport(discoveryUpstream)
	svc := newTestService(transport.roundTrip)

	if _, err := svc.DiscoverAll(context.Background(), 0, false, nil); err != nil {
		t.Fatalf("DiscoverAll failed: %v", err)
	}
	if !svc.snapshot.isValid() {
		t.Fatal("expected fresh snapshot after run")
	}
	svc.cursor.seen[900] = struct{}{}

	svc.ClearCaches()

	if svc.snapshot.isValid() {
		t.Error("expected snapshot cleared")
	}
	if svc.client.cache.size() != 0 {
		t.Error("expected response cache cleared")
	}
	if len(svc.cursor.seen) != 0 {
		t.Error("expected batch cursor reset")
	}
	if len(svc.Snapshot()) != 0 {
		t.Error("expected empty snapshot listing")
	}
}
