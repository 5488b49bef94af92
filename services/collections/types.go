package collections

import (
	"encoding/json"

	"reelstream/models"
)

// Raw upstream payload shapes. Movie and show listings disagree on their
// title and date field names; mediaRecord is the accessor both satisfy so
// nothing downstream ever probes for "title or name".

type mediaRecord interface {
	entityKind() string
	mediaID() int64
	mediaTitle() string
	releaseDate() string
	genreIDs() []int64
	runtimeMinutes() int
	voteAverage() float64
	voteCount() int64
	posterPath() string
}

type movieRecord struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int64   `json:"vote_count"`
	GenreIDs    []int64 `json:"genre_ids"`
	PosterPath  string  `json:"poster_path"`
	Popularity  float64 `json:"popularity"`
}

func (m movieRecord) entityKind() string   { return models.EntityKindMovie }
func (m movieRecord) mediaID() int64       { return m.ID }
func (m movieRecord) mediaTitle() string   { return m.Title }
func (m movieRecord) releaseDate() string  { return m.ReleaseDate }
func (m movieRecord) genreIDs() []int64    { return m.GenreIDs }
func (m movieRecord) runtimeMinutes() int  { return 0 }
func (m movieRecord) voteAverage() float64 { return m.VoteAverage }
func (m movieRecord) voteCount() int64     { return m.VoteCount }
func (m movieRecord) posterPath() string   { return m.PosterPath }

type showRecord struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	GenreIDs     []int64 `json:"genre_ids"`
	PosterPath   string  `json:"poster_path"`
}

func (s showRecord) entityKind() string   { return models.EntityKindShow }
func (s showRecord) mediaID() int64       { return s.ID }
func (s showRecord) mediaTitle() string   { return s.Name }
func (s showRecord) releaseDate() string  { return s.FirstAirDate }
func (s showRecord) genreIDs() []int64    { return s.GenreIDs }
func (s showRecord) runtimeMinutes() int  { return 0 }
func (s showRecord) voteAverage() float64 { return s.VoteAverage }
func (s showRecord) voteCount() int64     { return s.VoteCount }
func (s showRecord) posterPath() string   { return s.PosterPath }

type genreRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type collectionRefRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// movieDetailRecord is the full /movie/{id} payload. Listing fields are
// embedded; runtime and genres arrive only at this level.
type movieDetailRecord struct {
	movieRecord
	Runtime             int                  `json:"runtime"`
	Genres              []genreRecord        `json:"genres"`
	BelongsToCollection *collectionRefRecord `json:"belongs_to_collection"`
}

func (m movieDetailRecord) runtimeMinutes() int { return m.Runtime }

func (m movieDetailRecord) genreIDs() []int64 {
	if len(m.Genres) == 0 {
		return m.movieRecord.GenreIDs
	}
	ids := make([]int64, 0, len(m.Genres))
	for _, g := range m.Genres {
		ids = append(ids, g.ID)
	}
	return ids
}

// collectionRecord is the /collection/{id} payload.
type collectionRecord struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Overview     string        `json:"overview"`
	PosterPath   string        `json:"poster_path"`
	BackdropPath string        `json:"backdrop_path"`
	Parts        []movieRecord `json:"parts"`
}

type pagedMovies struct {
	Page         int           `json:"page"`
	Results      []movieRecord `json:"results"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
}

// collectionHit is one /search/collection result.
type collectionHit struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
}

type pagedCollectionHits struct {
	Page    int             `json:"page"`
	Results []collectionHit `json:"results"`
}

type multiSearchResponse struct {
	Page    int               `json:"page"`
	Results []json.RawMessage `json:"results"`
}

// decodeMediaRecord dispatches one /search/multi result on its media_type
// tag. Person hits and anything malformed are skipped.
func decodeMediaRecord(raw json.RawMessage) (mediaRecord, bool) {
	var probe struct {
		MediaType string `json:"media_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	switch probe.MediaType {
	case "movie":
		var m movieRecord
		if err := json.Unmarshal(raw, &m); err != nil || m.ID == 0 {
			return nil, false
		}
		return m, true
	case "tv":
		var s showRecord
		if err := json.Unmarshal(raw, &s); err != nil || s.ID == 0 {
			return nil, false
		}
		return s, true
	default:
		return nil, false
	}
}

func toEntity(r mediaRecord) models.Entity {
	return models.Entity{
		Kind:           r.entityKind(),
		ID:             r.mediaID(),
		Title:          r.mediaTitle(),
		ReleaseDate:    r.releaseDate(),
		RuntimeMinutes: r.runtimeMinutes(),
		VoteAverage:    r.voteAverage(),
		VoteCount:      r.voteCount(),
		GenreIDs:       r.genreIDs(),
		Poster:         buildImage(r.posterPath(), tmdbPosterSize, "poster"),
	}
}
