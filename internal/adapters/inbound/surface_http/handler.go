package surface_http

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
	"github.com/opunsoars/pitchly/internal/core/surfaces"
	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/fanout"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

// Surfacer is the part of surfaces.Service the handler needs.
type Surfacer interface {
	ForFrame(ctx context.Context, id int64, individual bool) (*pitchcontrol.Surface, error)
	ForEvent(ctx context.Context, id int64, individual bool) (*pitchcontrol.Surface, error)
}

// Handler serves pitch control surfaces on request.
//
// Routes:
//
//	GET /surface?frame=N[&individual=1]    -> surface_ready envelope
//	GET /surface/event?id=N[&individual=1] -> surface_ready envelope
//	GET /health                            -> 200 OK
type Handler struct {
	svc Surfacer
}

func NewHandler(svc Surfacer) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires HTTP routes onto the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /surface", h.frameSurface)
	mux.HandleFunc("GET /surface/event", h.eventSurface)
	mux.HandleFunc("GET /health", h.healthCheck)
}

func (h *Handler) frameSurface(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "frame")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	surf, err := h.svc.ForFrame(r.Context(), id, queryBool(r, "individual"))
	h.respond(w, r, surf, err)
}

func (h *Handler) eventSurface(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	surf, err := h.svc.ForEvent(r.Context(), id, queryBool(r, "individual"))
	h.respond(w, r, surf, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, surf *pitchcontrol.Surface, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			telemetry.Warnf("surface_http: %s: %v", r.URL.RequestURI(), err)
		}
		writeError(w, status, err)
		return
	}

	body, err := fanout.MarshalEvent(events.New(events.EventSurfaceReady, surf.FrameID,
		events.SurfaceEvent{Surface: surf, Source: surfaces.SourceRequest}))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Write(body)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	gz.Write(body)
}

// statusFor maps evaluation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrFrameNotFound), errors.Is(err, tracking.ErrEventNotFound):
		return http.StatusNotFound
	case pitchcontrol.IsFatal(err),
		errors.Is(err, tracking.ErrNoAttackingSide),
		errors.Is(err, tracking.ErrUnknownSide):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryID(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, errors.New("missing ?" + key + "= query param")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid ?" + key + "=: " + raw)
	}
	return id, nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","adapter":"surface_http"}`))
}
