package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"reelstream/handlers"

	"github.com/gorilla/mux"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		// Strip port if present
		for i := len(host) - 1; i >= 0; i-- {
			if host[i] == ':' {
				host = host[:i]
				break
			}
		}
		// Allow localhost, 127.0.0.1, ::1
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	settingsHandler *handlers.SettingsHandler,
	collectionsHandler *handlers.CollectionsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()

	// Add CORS middleware to API subrouter
	api.Use(corsMiddleware)

	api.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/health", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/settings/cache/clear", settingsHandler.ClearCollectionsCache).Methods(http.MethodPost)
	api.HandleFunc("/settings/cache/clear", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/search", collectionsHandler.SearchMedia).Methods(http.MethodGet)
	api.HandleFunc("/search", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/collections", collectionsHandler.Discover).Methods(http.MethodGet)
	api.HandleFunc("/collections", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/batch", collectionsHandler.NextBatch).Methods(http.MethodGet)
	api.HandleFunc("/collections/batch", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/search", collectionsHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/collections/search", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/cached", collectionsHandler.Cached).Methods(http.MethodGet)
	api.HandleFunc("/collections/cached", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/progress", collectionsHandler.InProgress).Methods(http.MethodGet)
	api.HandleFunc("/collections/progress", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/refresh", collectionsHandler.Refresh).Methods(http.MethodPost)
	api.HandleFunc("/collections/refresh", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/cache", collectionsHandler.ClearCache).Methods(http.MethodDelete)
	api.HandleFunc("/collections/cache", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/collections/{id:[0-9]+}", collectionsHandler.Detail).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id:[0-9]+}", handleOptions).Methods(http.MethodOptions)

	// Pprof debug endpoints for profiling (localhost only, no auth required for debugging)
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/allocs", pprof.Handler("allocs").ServeHTTP)
	pprofRouter.HandleFunc("/block", pprof.Handler("block").ServeHTTP)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)
	pprofRouter.HandleFunc("/mutex", pprof.Handler("mutex").ServeHTTP)
	pprofRouter.HandleFunc("/threadcreate", pprof.Handler("threadcreate").ServeHTTP)
}
