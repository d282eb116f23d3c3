package web

import (
	"encoding/json"
	"net/http"

	"netglobe/internal/models"
	"netglobe/internal/sink"
)

func connectionsHTMLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		html, err := staticFS.ReadFile("static/connections.html")
		if err != nil {
			http.Error(w, "failed to load html", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(html)
	}
}

func connectionsJSONHandler(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		groups := []models.DestGroup{}
		if src != nil {
			groups = sink.GroupByDest(src.Snapshot())
		}
		writeJSON(w, groups)
	}
}

func statsHandler(stats func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if stats == nil {
			writeJSON(w, struct{}{})
			return
		}
		writeJSON(w, stats())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
