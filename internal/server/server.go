// Package server exposes the board over HTTP: the merged optimistic view,
// the patch/undo/redo mutation surface, upsert imports, exports, and a
// websocket feed of mutation signals.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"caseboard/internal/eventbus"
	"caseboard/internal/export"
	"caseboard/internal/mutation"
	"caseboard/internal/overlay"
	"caseboard/pkg/domain"
)

const tracerName = "caseboard/server"

// timeNow is swapped in contact-recording tests.
var timeNow = func() time.Time { return time.Now().UTC() }

// Server wires the board components behind a chi router.
type Server struct {
	store   domain.ClientStore
	service *mutation.Service
	overlay *overlay.Overlay
	bus     *eventbus.Bus
	exports *export.Worker
	hub     *Hub
	tracer  trace.Tracer
	router  chi.Router
}

// New constructs the HTTP surface. The export worker may be nil; the export
// routes then answer 503.
func New(store domain.ClientStore, service *mutation.Service, ov *overlay.Overlay, bus *eventbus.Bus, exports *export.Worker) *Server {
	s := &Server{
		store:   store,
		service: service,
		overlay: ov,
		bus:     bus,
		exports: exports,
		hub:     NewHub(bus),
		tracer:  otel.Tracer(tracerName),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close detaches the websocket hub from the bus and closes its connections.
func (s *Server) Close() { s.hub.Close() }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.traced)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/clients", s.handleListClients)
		r.Get("/clients/{id}", s.handleGetClient)
		r.Post("/clients", s.handleUpsertClient)
		r.Post("/clients/{id}/contact", s.handleRecordContact)
		r.Post("/clients/{id}/priority", s.handleCyclePriority)

		r.Post("/patches", s.handleApplyPatches)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
		r.Get("/history", s.handleHistory)
		r.Post("/history/clear", s.handleClearHistory)

		r.Post("/exports", s.handleEnqueueExport)
		r.Get("/exports", s.handleListExports)
		r.Get("/exports/{id}", s.handleGetExport)
	})
	s.router = r
}

// traced opens a span per request and renames it to the matched route
// pattern after the handler ran; raw paths embed ids and would explode the
// span name cardinality.
func (s *Server) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method)
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		r = r.WithContext(ctx)
		next.ServeHTTP(w, r)
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
	})
}

// handleListClients returns the persisted snapshot with optimistic deltas
// layered on top. This is the view a board renders from.
func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	merged := s.overlay.MergedView(s.store.ListClients())
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":  merged,
		"revision": s.overlay.Revision(),
	})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := s.store.GetClient(id)
	if !ok {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if entry, ok := s.overlay.Entry(id); ok {
		merged := client.Clone()
		if err := merged.Apply(entry); err == nil {
			client = merged
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (s *Server) handleUpsertClient(w http.ResponseWriter, r *http.Request) {
	var client domain.Client
	if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
		writeError(w, http.StatusBadRequest, "invalid client payload: "+err.Error())
		return
	}
	if client.ID == "" {
		writeError(w, http.StatusBadRequest, "client id required")
		return
	}
	decision, err := s.service.UpsertClient(r.Context(), client)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decision": decision})
}

type patchRequest struct {
	Patches []domain.Patch `json:"patches"`
}

// handleApplyPatches is the optimistic mutation path: the patches are
// announced to the overlay before persistence, and withdrawn with a clear
// signal when the transaction fails.
func (s *Server) handleApplyPatches(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch payload: "+err.Error())
		return
	}
	if len(req.Patches) == 0 {
		writeError(w, http.StatusBadRequest, "at least one patch required")
		return
	}

	s.bus.Publish(eventbus.Event{Kind: eventbus.KindApply, Patches: req.Patches})
	outcome, err := s.service.ApplyPatches(r.Context(), req.Patches)
	if err != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.KindClear})
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"noop":    outcome.NoOp,
		"history": s.service.Status(),
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	patch, err := s.service.Undo(r.Context())
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"undone":  patch,
		"history": s.service.Status(),
	})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	patch, err := s.service.Redo(r.Context())
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redone":  patch,
		"history": s.service.Status(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.service.Status()})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.service.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]any{"history": s.service.Status()})
}

func (s *Server) handleRecordContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	patch, err := s.service.RecordContact(r.Context(), id, timeNow())
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": patch})
}

func (s *Server) handleCyclePriority(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	patch, err := s.service.CyclePriority(r.Context(), id)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": patch})
}

type exportRequest struct {
	Formats     []export.Format `json:"formats"`
	RequestedBy string          `json:"requested_by"`
}

func (s *Server) handleEnqueueExport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export payload: "+err.Error())
		return
	}
	record, err := s.exports.Enqueue(r.Context(), export.Input{Formats: req.Formats, RequestedBy: req.RequestedBy})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (s *Server) handleListExports(w http.ResponseWriter, _ *http.Request) {
	if s.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": s.exports.List()})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	record, ok := s.exports.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeMutationError maps the mutation error taxonomy onto HTTP statuses.
func writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStackEmpty):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
