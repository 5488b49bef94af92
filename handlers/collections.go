package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"reelstream/models"
	collectionspkg "reelstream/services/collections"
)

type collectionsService interface {
	DiscoverAll(ctx context.Context, maxResults int, forceRefresh bool, onProgress func(models.DiscoveryProgress)) ([]models.Collection, error)
	NextBatch(ctx context.Context, batchSize int) (models.CollectionBatch, error)
	CollectionDetail(ctx context.Context, id int64) (*models.Collection, error)
	SearchCollections(ctx context.Context, query string, limit int) ([]models.Collection, error)
	SearchMedia(ctx context.Context, query string) ([]models.Entity, error)
	Snapshot() []models.Collection
	Progress() models.DiscoveryProgress
	ClearCaches()
}

var _ collectionsService = (*collectionspkg.Service)(nil)

type CollectionsHandler struct {
	Service collectionsService
}

func NewCollectionsHandler(s collectionsService) *CollectionsHandler {
	return &CollectionsHandler{Service: s}
}

// CollectionsResponse wraps the catalog with run metadata for the client.
type CollectionsResponse struct {
	Collections []models.Collection `json:"collections"`
	Total       int                 `json:"total"`
	Degraded    bool                `json:"degraded"`
}

func (h *CollectionsHandler) Discover(w http.ResponseWriter, r *http.Request) {
	maxResults := 0
	if v := r.URL.Query().Get("max"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxResults = parsed
		}
	}
	refresh := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("refresh")), "true")

	list, err := h.Service.DiscoverAll(r.Context(), maxResults, refresh, nil)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CollectionsResponse{
		Collections: list,
		Total:       len(list),
		Degraded:    h.Service.Progress().Degraded,
	})
}

func (h *CollectionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.DiscoverAll(r.Context(), 0, true, nil)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CollectionsResponse{
		Collections: list,
		Total:       len(list),
		Degraded:    h.Service.Progress().Degraded,
	})
}

func (h *CollectionsHandler) NextBatch(w http.ResponseWriter, r *http.Request) {
	size := 0
	if v := r.URL.Query().Get("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}

	batch, err := h.Service.NextBatch(r.Context(), size)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if batch.Collections == nil {
		batch.Collections = []models.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batch)
}

func (h *CollectionsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid collection id"})
		return
	}

	col, err := h.Service.CollectionDetail(r.Context(), id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, collectionspkg.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			w.WriteHeader(http.StatusBadGateway)
		}
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(col)
}

func (h *CollectionsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.Service.SearchCollections(r.Context(), q, limit)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, collectionspkg.ErrQueryRequired) {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(http.StatusBadGateway)
		}
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []models.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (h *CollectionsHandler) SearchMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	results, err := h.Service.SearchMedia(r.Context(), q)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, collectionspkg.ErrQueryRequired) {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(http.StatusBadGateway)
		}
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []models.Entity{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Cached returns whatever the snapshot holds without triggering a crawl.
func (h *CollectionsHandler) Cached(w http.ResponseWriter, r *http.Request) {
	list := h.Service.Snapshot()
	if list == nil {
		list = []models.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CollectionsResponse{Collections: list, Total: len(list)})
}

func (h *CollectionsHandler) InProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Progress())
}

func (h *CollectionsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Service.ClearCaches()
	w.WriteHeader(http.StatusNoContent)
}
