package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
)

// HealthResponse is the liveness/readiness body shape.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health is a pure liveness check; it never touches the catalog or blob
// store.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// Ready additionally probes the catalog and blob store, so an orchestrator
// can hold traffic until both dependencies answer.
func Ready(cat *catalog.Catalog, blobs blobstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := cat.ListExpiredFiles(time.Now()); err != nil {
			writeNotReady(w, "catalog")
			return
		}
		if _, err := blobs.Head(ctx, "__readiness_probe__"); err != nil {
			writeNotReady(w, "blobstore")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ready"})
	}
}

func writeNotReady(w http.ResponseWriter, dep string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "dependency": dep})
}
