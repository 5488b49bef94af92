package collections

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"reelstream/models"
)

// ErrNotFound marks expected absence: the upstream has no usable record for
// the requested id. Callers branch on it instead of treating it as a failure.
var ErrNotFound = errors.New("collection not found")

const memberFetchConcurrency = 5

// TODO: derive studio from member production_companies instead of the placeholder.
const studioPlaceholder = "Various Studios"

// movieGenreNames is the fixed TMDB movie genre table.
var movieGenreNames = map[int64]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

// CollectionDetail resolves a collection's full record: every member's detail
// is fetched in parallel and the aggregates are computed from the results. A
// failed collection fetch is reported as ErrNotFound; a failed member fetch
// degrades that member to its raw listing record.
func (s *Service) CollectionDetail(ctx context.Context, id int64) (*models.Collection, error) {
	var rec collectionRecord
	if err := s.client.get(ctx, fmt.Sprintf("/collection/%d", id), nil, &rec); err != nil {
		log.Printf("[collections] collection %d fetch failed: %v", id, err)
		return nil, ErrNotFound
	}
	return s.assembleCollection(ctx, rec), nil
}

func (s *Service) assembleCollection(ctx context.Context, rec collectionRecord) *models.Collection {
	members := make([]models.Entity, len(rec.Parts))
	p := pool.New().WithMaxGoroutines(memberFetchConcurrency)
	for i, part := range rec.Parts {
		i, part := i, part // per-iteration copies; required while go.mod targets <1.22
		p.Go(func() {
			detail, err := s.movieDetail(ctx, part.ID)
			if err != nil {
				log.Printf("[collections] member %d of %q: %v (using listing record)", part.ID, rec.Name, err)
				members[i] = toEntity(part)
				return
			}
			members[i] = toEntity(detail)
		})
	}
	p.Wait()

	// undated members sort to the front via their zero ReleaseTime
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].ReleaseTime().Before(members[j].ReleaseTime())
	})

	totalRuntime := 0
	var first, last time.Time
	genreSet := make(map[int64]struct{})
	for _, m := range members {
		totalRuntime += m.RuntimeMinutes
		if t := m.ReleaseTime(); !t.IsZero() {
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
		for _, g := range m.GenreIDs {
			genreSet[g] = struct{}{}
		}
	}
	genres := make([]string, 0, len(genreSet))
	for id := range genreSet {
		if name, ok := movieGenreNames[id]; ok {
			genres = append(genres, name)
		}
	}
	sort.Strings(genres)

	col := &models.Collection{
		ID:               rec.ID,
		Name:             rec.Name,
		Overview:         rec.Overview,
		Poster:           buildImage(rec.PosterPath, tmdbPosterSize, "poster"),
		Backdrop:         buildImage(rec.BackdropPath, tmdbBackdropSize, "backdrop"),
		Members:          members,
		FilmCount:        len(members),
		TotalRuntimeMins: totalRuntime,
		Type:             classifyCollection(len(members)),
		Status:           collectionStatus(len(members), last, time.Now()),
		Genres:           genres,
		Studio:           studioPlaceholder,
	}
	if !first.IsZero() {
		col.FirstReleaseDate = first.Format("2006-01-02")
	}
	if !last.IsZero() {
		col.LastReleaseDate = last.Format("2006-01-02")
	}
	return col
}

func (s *Service) movieDetail(ctx context.Context, id int64) (movieDetailRecord, error) {
	var rec movieDetailRecord
	err := s.client.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &rec)
	return rec, err
}

// movieCollectionRef looks up the collection a movie belongs to. Movies
// outside any collection return (nil, nil).
func (s *Service) movieCollectionRef(ctx context.Context, id int64) (*models.CollectionRef, error) {
	rec, err := s.movieDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.BelongsToCollection == nil || rec.BelongsToCollection.ID == 0 {
		return nil, nil
	}
	return &models.CollectionRef{
		ID:   rec.BelongsToCollection.ID,
		Name: rec.BelongsToCollection.Name,
	}, nil
}

// classifyCollection names a collection by member count.
func classifyCollection(count int) string {
	switch {
	case count < 3:
		return models.CollectionTypeIncompleteSeries
	case count == 3:
		return models.CollectionTypeTrilogy
	case count == 4:
		return models.CollectionTypeQuadrilogy
	case count > 9:
		return models.CollectionTypeExtendedSeries
	default:
		return models.CollectionTypeSaga
	}
}

// collectionStatus derives lifecycle state: fewer than three members is
// incomplete regardless of dates, otherwise a release in the last three
// years counts as ongoing.
func collectionStatus(count int, latest, now time.Time) string {
	if count < 3 {
		return models.CollectionStatusIncomplete
	}
	if !latest.IsZero() && latest.After(now.AddDate(-3, 0, 0)) {
		return models.CollectionStatusOngoing
	}
	return models.CollectionStatusComplete
}
