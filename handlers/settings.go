package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"reelstream/config"
	"reelstream/services/collections"
)

type SettingsHandler struct {
	Manager            *config.Manager
	CollectionsService *collections.Service
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// SetCollectionsService sets the collections service for hot reloading API keys.
func (h *SettingsHandler) SetCollectionsService(cs *collections.Service) {
	h.CollectionsService = cs
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	dec := json.NewDecoder(r.Body)
	// Allow unknown fields for backward compatibility with old configs
	if err := dec.Decode(&s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err := h.Manager.Save(s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	// Hot reload services that cache configuration at startup
	h.reloadServices(s)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) reloadServices(s config.Settings) {
	if h.CollectionsService != nil {
		h.CollectionsService.UpdateCredentials(s.Metadata.TMDBAPIKey, s.Metadata.Language)
		log.Printf("[settings] reloaded collections service API key")
	}
}

// ClearCollectionsCache drops the discovery snapshot and response cache.
func (h *SettingsHandler) ClearCollectionsCache(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.CollectionsService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "collections service not available"})
		return
	}
	h.CollectionsService.ClearCaches()
	log.Printf("[settings] collections caches cleared by user request")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "Collections cache cleared"})
}
