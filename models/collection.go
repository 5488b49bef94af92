package models

import "time"

// Core structures for discovered film collections (franchises).

type Image struct {
	URL  string `json:"url"`
	Type string `json:"type"` // poster, backdrop
}

// Entity kind discriminator.
const (
	EntityKindMovie = "movie"
	EntityKindShow  = "show"
)

// Entity is a single work inside a collection.
type Entity struct {
	Kind           string  `json:"kind"` // movie | show
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	ReleaseDate    string  `json:"releaseDate,omitempty"` // YYYY-MM-DD, empty when unannounced
	RuntimeMinutes int     `json:"runtimeMinutes,omitempty"`
	VoteAverage    float64 `json:"voteAverage,omitempty"`
	VoteCount      int64   `json:"voteCount,omitempty"`
	GenreIDs       []int64 `json:"genreIds,omitempty"`
	Poster         *Image  `json:"poster,omitempty"`
}

// ReleaseTime parses the entity release date. Undated entities return the
// zero time so they sort before every dated one.
func (e Entity) ReleaseTime() time.Time {
	if e.ReleaseDate == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", e.ReleaseDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CollectionRef is the weak back-reference a movie carries to its collection.
type CollectionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Collection classification, derived from member count.
const (
	CollectionTypeTrilogy          = "trilogy"
	CollectionTypeQuadrilogy       = "quadrilogy"
	CollectionTypeSaga             = "saga"
	CollectionTypeExtendedSeries   = "extended_series"
	CollectionTypeIncompleteSeries = "incomplete_series"
)

// Collection status, derived from member count and latest release.
const (
	CollectionStatusOngoing    = "ongoing"
	CollectionStatusComplete   = "complete"
	CollectionStatusIncomplete = "incomplete"
)

// Collection is a resolved franchise: its ordered members plus aggregates.
// FilmCount always equals len(Members); Type and Status are recomputed from
// the member list on every resolve and never stored independently.
type Collection struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Overview         string   `json:"overview,omitempty"`
	Poster           *Image   `json:"poster,omitempty"`
	Backdrop         *Image   `json:"backdrop,omitempty"`
	Members          []Entity `json:"members"`
	FilmCount        int      `json:"filmCount"`
	TotalRuntimeMins int      `json:"totalRuntimeMinutes"`
	FirstReleaseDate string   `json:"firstReleaseDate,omitempty"`
	LastReleaseDate  string   `json:"lastReleaseDate,omitempty"`
	Type             string   `json:"type"`
	Status           string   `json:"status"`
	Genres           []string `json:"genres,omitempty"`
	Studio           string   `json:"studio,omitempty"`
}
