package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/export"
	"collabcanvas/internal/logging"
)

// board is what the HTTP routes need from the hub.
type board interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Snapshot(ctx context.Context) (canvas.Snapshot, error)
	Connected() int
}

func newRouter(b board, metrics http.Handler, name string, log logging.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", b.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "board": name, "connected": b.Connected()})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, err := snapshot(r.Context(), b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap)
	}).Methods(http.MethodGet)
	r.HandleFunc("/export.pdf", func(w http.ResponseWriter, r *http.Request) {
		snap, err := snapshot(r.Context(), b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		var buf bytes.Buffer
		if err := export.PDF(&buf, snap.History, name); err != nil {
			log.Error("pdf export failed", "err", err)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s-%d.pdf"`, name, time.Now().UnixMilli()))
		_, _ = w.Write(buf.Bytes())
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	return r
}

func snapshot(ctx context.Context, b board) (canvas.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.Snapshot(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
