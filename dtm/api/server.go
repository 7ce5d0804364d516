// Package api exposes the economic analyzer and traffic manager over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/peer"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ReportSink accepts economic-analyzer reports. *economic.Registry
// implements it.
type ReportSink interface {
	UpdateXZVectors(ctx context.Context, x dtm.XVector, zs []dtm.ZVector) error
}

// Manager is the traffic-manager side of the API. *dtm.TrafficManager
// implements it.
type Manager interface {
	UpdateXVector(x dtm.XVector) error
	UpdateRVector(ctx context.Context, r dtm.ReferenceVector) error
	Pair(as uint32) (dtm.XRVectorPair, bool)
}

// CompensationHandler processes a compensation vector received from a
// remote peer.
type CompensationHandler func(ctx context.Context, m peer.Message) error

// Report is the body of POST /v1/ea/reports.
type Report struct {
	X dtm.XVector   `json:"x"`
	Z []dtm.ZVector `json:"z"`
}

// State is the body of GET /v1/dtm/state/{as}.
type State struct {
	SourceAS  uint32               `json:"source_as"`
	X         *dtm.XVector         `json:"x,omitempty"`
	Reference *dtm.ReferenceVector `json:"reference,omitempty"`
	Ready     bool                 `json:"ready"`
}

// Server holds the collaborators behind the routes. Nil collaborators leave
// their routes unmounted.
type Server struct {
	Reports      ReportSink
	Manager      Manager
	Compensation CompensationHandler
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
	}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		if s.Reports != nil {
			r.Post("/ea/reports", s.postReport)
		}
		if s.Manager != nil {
			r.Post("/dtm/x", s.postX)
			r.Post("/dtm/r", s.postR)
			r.Get("/dtm/state/{as}", s.getState)
		}
		if s.Compensation != nil {
			r.Post("/dtm/compensation", s.postCompensation)
		}
	})
	return r
}

func (s *Server) postReport(w http.ResponseWriter, r *http.Request) {
	var body Report
	if !decode(w, r, &body) {
		return
	}
	if err := s.Reports.UpdateXZVectors(r.Context(), body.X, body.Z); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) postX(w http.ResponseWriter, r *http.Request) {
	var x dtm.XVector
	if !decode(w, r, &x) {
		return
	}
	if err := s.Manager.UpdateXVector(x); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) postR(w http.ResponseWriter, r *http.Request) {
	var ref dtm.ReferenceVector
	if !decode(w, r, &ref) {
		return
	}
	if err := s.Manager.UpdateRVector(r.Context(), ref); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	as, err := strconv.ParseUint(chi.URLParam(r, "as"), 10, 32)
	if err != nil || as == 0 {
		http.Error(w, fmt.Sprintf("bad AS number %q", chi.URLParam(r, "as")), http.StatusBadRequest)
		return
	}
	pair, ok := s.Manager.Pair(uint32(as))
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no state for AS %d", dtm.ErrNotFound, as))
		return
	}
	writeJSON(w, State{SourceAS: uint32(as), X: pair.X, Reference: pair.R, Ready: pair.Ready()})
}

func (s *Server) postCompensation(w http.ResponseWriter, r *http.Request) {
	var m peer.Message
	if !decode(w, r, &m) {
		return
	}
	if m.Compensation.SourceAS == 0 {
		writeError(w, r, fmt.Errorf("%w: compensation vector has no AS number", dtm.ErrInvalidVector))
		return
	}
	if m.Reference != nil {
		if err := m.Reference.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := s.Compensation(r.Context(), m); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("decoding body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, dtm.ErrInvalidVector),
		errors.Is(err, dtm.ErrMismatchedLinks),
		errors.Is(err, dtm.ErrUnsupportedLinkID):
		return http.StatusBadRequest
	case errors.Is(err, dtm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dtm.ErrDispatcherClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logrus.WithField("path", r.URL.Path).Errorf("request failed: %v", err)
	} else {
		logrus.WithField("path", r.URL.Path).Debugf("request rejected: %v", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("encoding response: %v", err)
	}
}
