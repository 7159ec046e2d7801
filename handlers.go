package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/marxanconnect/connect"
)

// maxProjectBody bounds PUT /project uploads
const maxProjectBody = 64 << 20

// newHTTPServer creates an HTTP server with all endpoints. Jobs started by
// POST /rescale run under ctx rather than the request context.
func newHTTPServer(ctx context.Context, store *connect.ProjectStore, jobs *connect.JobRunner, dispatcher *connect.Dispatcher, config *connect.Config, publisher *connect.Publisher) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		p := store.Snapshot()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Project   string    `json:"project"`
			Metrics   []string  `json:"metrics"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Project:   store.Path(),
			Metrics:   p.MetricKeys(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /project", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot())
	})

	mux.HandleFunc("PUT /project", func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProjectBody))
		if err != nil {
			http.Error(w, "Error reading body: "+err.Error(), http.StatusBadRequest)
			return
		}
		p, err := connect.ParseProject(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		store.Replace(p)
		log.Printf("[HTTP] project replaced")
		writeJSON(w, http.StatusOK, p)
	})

	mux.HandleFunc("POST /project/save", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Save(); err != nil {
			if errors.Is(err, connect.ErrNoProjectPath) {
				http.Error(w, "Service was started without -project", http.StatusConflict)
				return
			}
			log.Printf("[HTTP] save failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		path := store.Path()
		log.Printf("[HTTP] project saved to %s", path)
		if publisher != nil {
			if err := publisher.PublishSaved(path); err != nil {
				log.Printf("[MQTT] publish failed: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path})
	})

	mux.HandleFunc("POST /metrics", func(w http.ResponseWriter, r *http.Request) {
		var sel connect.Selection
		if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
			http.Error(w, "Invalid selection: "+err.Error(), http.StatusBadRequest)
			return
		}
		if sel.Space != "" && !sel.Space.Valid() {
			http.Error(w, "Unknown space "+string(sel.Space), http.StatusBadRequest)
			return
		}
		if sel.Empty() {
			http.Error(w, "Nothing selected", http.StatusBadRequest)
			return
		}

		res, err := store.Calculate(dispatcher, sel)
		if err != nil {
			log.Printf("[HTTP] /metrics failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if publisher != nil {
			if err := publisher.PublishResult(res); err != nil {
				log.Printf("[MQTT] publish failed: %v", err)
			}
		}
		if res.Warning != nil {
			writeWarning(w, res.Warning)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /rescale", func(w http.ResponseWriter, r *http.Request) {
		p := store.Snapshot()
		rescaleConfig := config.Rescale
		job := jobs.Submit(ctx, "rescale", func(ctx context.Context) (*connect.Warning, error) {
			return connect.RescaleFiles(ctx, p, rescaleConfig)
		})
		w.Header().Set("Location", "/jobs/"+job.ID)
		writeJSON(w, http.StatusAccepted, job.Info())
	})

	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jobs.List())
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := jobs.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job.Info())
	})

	mux.HandleFunc("DELETE /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := jobs.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		job.Cancel()
		writeJSON(w, http.StatusAccepted, job.Info())
	})

	// Map and graph plots
	mapHandler := func(svg bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			renderer, warning, err := connect.LoadMapRenderer(store.Snapshot(), config)
			servePlot(w, r, renderer, warning, err, svg)
		}
	}
	graphHandler := func(svg bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			renderer, warning, err := connect.LoadGraphRenderer(store.Snapshot(), config)
			servePlot(w, r, renderer, warning, err, svg)
		}
	}
	mux.HandleFunc("GET /map.png", mapHandler(false))
	mux.HandleFunc("GET /map.svg", mapHandler(true))
	mux.HandleFunc("GET /graph.png", graphHandler(false))
	mux.HandleFunc("GET /graph.svg", graphHandler(true))

	mux.HandleFunc("GET /chart/{file}", func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutSuffix(r.PathValue("file"), ".png")
		if !ok {
			http.Error(w, "Charts are only available as PNG", http.StatusNotFound)
			return
		}
		if _, _, err := connect.ParseMetricKey(key); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		var buf bytes.Buffer
		if err := connect.RenderProjectMetricChart(&buf, store.Snapshot(), key); err != nil {
			http.Error(w, err.Error(), plotErrorStatus(err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(buf.Bytes()); err != nil {
			log.Printf("[HTTP] error writing chart: %v", err)
		}
	})

	return mux
}

// servePlot renders a loaded plot or reports why it could not be loaded.
func servePlot(w http.ResponseWriter, r *http.Request, renderer plotRenderer, warning *connect.Warning, err error, svg bool) {
	if err != nil {
		log.Printf("[HTTP] %s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if warning != nil {
		writeWarning(w, warning)
		return
	}

	var buf bytes.Buffer
	contentType := "image/png"
	if svg {
		contentType = "image/svg+xml"
		err = renderer.RenderToSVG(&buf)
	} else {
		err = renderer.RenderToPNG(&buf)
	}
	if err != nil {
		log.Printf("[HTTP] %s render failed: %v", r.URL.Path, err)
		http.Error(w, err.Error(), plotErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("[HTTP] error writing %s: %v", r.URL.Path, err)
	}
}

// plotErrorStatus maps a plot failure to a status code
func plotErrorStatus(err error) int {
	if errors.Is(err, connect.ErrMetricNotCalculated) {
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}

// writeWarning reports a skipped operation as 409 Conflict
func writeWarning(w http.ResponseWriter, warning *connect.Warning) {
	writeJSON(w, http.StatusConflict, map[string]*connect.Warning{"warning": warning})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] error encoding response: %v", err)
	}
}
