// Package httpapi serves lookups over HTTP: JSON for clients and a static
// HTML report page for browsers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"urbanlens/internal/history"
	"urbanlens/internal/lookup"
	"urbanlens/internal/metrics"
	"urbanlens/internal/render"
	"urbanlens/internal/report"
	"urbanlens/models"
)

// maxBatch bounds the number of addresses accepted by POST /api/lookups.
const maxBatch = 50

// Looker is satisfied by *lookup.Service.
type Looker interface {
	Lookup(ctx context.Context, req models.LookupRequest) (*report.Report, error)
	LookupAt(ctx context.Context, lat, lon float64, req models.LookupRequest) (*report.Report, error)
	LookupMany(ctx context.Context, reqs []models.LookupRequest, concurrency int) []lookup.Outcome
}

// History is satisfied by *history.Store.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Lookup, error)
}

type Server struct {
	looker      Looker
	history     History
	concurrency int
	timeout     time.Duration
}

// New builds the API. history may be nil, in which case /api/history answers 404.
func New(looker Looker, hist History, concurrency int, timeout time.Duration) *Server {
	if concurrency < 1 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{looker: looker, history: hist, concurrency: concurrency, timeout: timeout}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Get("/api/lookup", s.handleLookup)
		r.Post("/api/lookups", s.handleBatch)
		r.Get("/api/history", s.handleHistory)
		r.Get("/report", s.handleReport)
	})
	return r
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.run(r.Context(), q)
	if err != nil {
		writeError(w, statusFor(err), message(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := render.JSON(w, rep); err != nil {
		zap.L().Error("failed to write report", zap.Error(err))
	}
}

type batchItem struct {
	Address string           `json:"address"`
	Found   bool             `json:"found"`
	Error   string           `json:"error,omitempty"`
	Report  *render.Document `json:"report,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []models.LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "no addresses given")
		return
	}
	if len(reqs) > maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many addresses (max "+strconv.Itoa(maxBatch)+")")
		return
	}

	outcomes := s.looker.LookupMany(r.Context(), reqs, s.concurrency)
	items := make([]batchItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = batchItem{Address: o.Request.Address}
		if o.Err != nil {
			items[i].Error = message(o.Err)
			continue
		}
		items[i].Found = true
		items[i].Report = &render.Document{Report: o.Report, Summary: o.Report.Summary()}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	rows, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		zap.L().Error("failed to read history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.run(r.Context(), q)
	if rep == nil {
		http.Error(w, message(err), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(statusFor(err))
	}
	if err := render.HTML(w, rep); err != nil {
		zap.L().Error("failed to write report page", zap.Error(err))
	}
}

type query struct {
	req models.LookupRequest
	at  *models.Coordinates
}

func (s *Server) run(ctx context.Context, q query) (*report.Report, error) {
	if q.at != nil {
		return s.looker.LookupAt(ctx, q.at.Lat, q.at.Lon, q.req)
	}
	return s.looker.Lookup(ctx, q.req)
}

// parseQuery reads address (or lat and lon), provider, radius and pano from
// the query string.
func parseQuery(r *http.Request) (query, error) {
	v := r.URL.Query()
	q := query{req: models.LookupRequest{
		Address:  strings.TrimSpace(v.Get("address")),
		Provider: models.Provider(v.Get("provider")),
	}}

	if v.Get("lat") != "" || v.Get("lon") != "" {
		lat, errLat := strconv.ParseFloat(v.Get("lat"), 64)
		lon, errLon := strconv.ParseFloat(v.Get("lon"), 64)
		if errLat != nil || errLon != nil {
			return q, errors.New("lat and lon must both be numbers")
		}
		q.at = &models.Coordinates{Lat: lat, Lon: lon}
	} else if q.req.Address == "" {
		return q, errors.New("address is required")
	}

	if s := v.Get("radius"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, errors.New("radius must be a positive integer")
		}
		q.req.RadiusM = n
	}
	if s := v.Get("pano"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, errors.New("pano must be true or false")
		}
		q.req.PreferPano = &b
	}
	return q, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lookup.ErrBlankAddress), errors.Is(err, lookup.ErrInvalidCoordinates):
		return http.StatusBadRequest
	case errors.Is(err, lookup.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lookup.ErrGeocoderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// message is the client-facing text for a lookup error. Internal details
// stay in the logs.
func message(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		if errors.Is(err, lookup.ErrInvalidCoordinates) {
			return "coordinates out of range"
		}
		return "address is required"
	case http.StatusNotFound:
		return "address not found"
	case http.StatusBadGateway:
		return "geocoding service unavailable"
	case http.StatusGatewayTimeout:
		return "lookup timed out"
	default:
		zap.L().Error("lookup failed", zap.Error(err))
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
