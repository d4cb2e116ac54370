package main

import (
	"encoding/json"
	"net/http"

	"github.com/buildmesh/enginecore/internal/configcache"
	"github.com/buildmesh/enginecore/internal/requestengine"
	"github.com/buildmesh/enginecore/internal/resultscache"
)

// registerDebugAPI wires the read-only introspection endpoints: cache
// enumeration and the request engine's active-builder list. These exist
// purely for operator visibility, never as a control surface.
func registerDebugAPI(mux interface {
	HandleFunc(path string, handler func(http.ResponseWriter, *http.Request))
}, configCache *configcache.Cache, resultsCache *resultscache.Cache, eng *requestengine.Engine) {
	mux.HandleFunc("/debug/configurations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, configCache.Enumerate())
	})
	mux.HandleFunc("/debug/results", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, resultsCache.Enumerate())
	})
	mux.HandleFunc("/debug/builders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.ActiveBuilders())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
