package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/engine"
	"github.com/ivlev/swimprogress/internal/preview"
	"github.com/ivlev/swimprogress/internal/renderer"
	"github.com/ivlev/swimprogress/internal/system"
)

// Exporter is the part of engine.Exporter the handlers use.
type Exporter interface {
	Export(ctx context.Context, kind system.Kind, value int, progress engine.ProgressFunc) (*engine.Artifact, error)
	State() engine.State
}

// Assets are the layers the preview snapshot draws.
type Assets struct {
	Track      *director.Track
	Background image.Image
	Subject    image.Image
	Options    renderer.Options
}

type Handler struct {
	cfg      *config.Config
	exporter Exporter
	assets   Assets
	metrics  *Metrics

	// font faces are not safe for concurrent use
	snapshotMu sync.Mutex
}

func NewHandler(router *mux.Router, cfg *config.Config, exporter Exporter, assets Assets, metrics *Metrics) *Handler {
	handler := &Handler{
		cfg:      cfg,
		exporter: exporter,
		assets:   assets,
		metrics:  metrics,
	}

	router.HandleFunc("/api/preview", handler.handlePreview).Methods("GET").Name("preview")
	router.HandleFunc("/api/preview.png", handler.handlePreviewImage).Methods("GET").Name("preview-image")
	router.HandleFunc("/api/export/{kind}", handler.handleExport).Methods("POST").Name("export")
	router.HandleFunc("/api/state", handler.handleState).Methods("GET").Name("state")

	return handler
}

func (handler *Handler) value(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("value")
	if raw == "" {
		return 0, errors.New("missing value")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("value must be an integer: %w", err)
	}
	return config.Clamp(v, handler.cfg.Goal), nil
}

func (handler *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	v, err := handler.value(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := preview.Update(handler.assets.Track, v, handler.cfg.Goal, handler.cfg.Unit)
	handler.metrics.CounterPreviews.Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Errorf("encode preview: %s", err)
	}
}

func (handler *Handler) handlePreviewImage(w http.ResponseWriter, r *http.Request) {
	v, err := handler.value(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a := handler.assets
	handler.snapshotMu.Lock()
	data, err := preview.Snapshot(a.Track, a.Background, a.Subject, v, a.Options)
	handler.snapshotMu.Unlock()
	if err != nil {
		log.Errorf("preview snapshot: %s", err)
		http.Error(w, "preview unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (handler *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var kind system.Kind
	switch mux.Vars(r)["kind"] {
	case "gif":
		kind = system.KindGIF
	case "video":
		kind = system.KindVideo
	default:
		http.Error(w, "unknown export kind", http.StatusNotFound)
		return
	}

	v, err := handler.value(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handler.metrics.GaugeExportsInFlight.Inc()
	start := time.Now()
	artifact, err := handler.exporter.Export(r.Context(), kind, v, nil)
	handler.metrics.GaugeExportsInFlight.Dec()

	if err != nil {
		status := http.StatusInternalServerError
		outcome := "failed"
		var unavailable *system.UnavailableError
		switch {
		case errors.Is(err, engine.ErrBusy):
			status, outcome = http.StatusConflict, "busy"
		case errors.As(err, &unavailable):
			status, outcome = http.StatusServiceUnavailable, "unavailable"
		}
		handler.metrics.CounterExports.WithLabelValues(string(kind), outcome).Inc()
		http.Error(w, engine.UserMessage(err), status)
		return
	}

	handler.metrics.CounterExports.WithLabelValues(string(kind), "ok").Inc()
	handler.metrics.HistExportDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", artifact.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	_, _ = w.Write(artifact.Data)
}

func (handler *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"state": handler.exporter.State().String()})
}
