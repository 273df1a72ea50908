package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appscans "github.com/bryanwahyu/vulnscan/internal/application/scans"
	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
	"github.com/bryanwahyu/vulnscan/internal/domain/scanerrors"
	"github.com/bryanwahyu/vulnscan/internal/middleware"
)

type Router struct {
	scansSvc *appscans.Service
	errsRepo scanerrors.Repository
	health   http.HandlerFunc
}

// NewRouter builds the API surface. errsRepo and health may be nil.
func NewRouter(scansSvc *appscans.Service, errsRepo scanerrors.Repository, health http.HandlerFunc) http.Handler {
	r := &Router{scansSvc: scansSvc, errsRepo: errsRepo, health: health}
	mux := chi.NewRouter()

	if health != nil {
		mux.Get("/health", health)
	} else {
		mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	}
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/scans", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreateScan))
		rt.Get("/", r.wrap(r.handleListScans))
		rt.Get("/{id}", r.wrap(r.handleGetScan))
		rt.Get("/{id}/errors", r.wrap(r.handleScanErrors))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries a status code through the wrap helper.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }
func notFound(msg string) error   { return &httpError{status: http.StatusNotFound, msg: msg} }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var he *httpError
			if errors.As(err, &he) {
				writeError(w, he.status, he.msg)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
		"message": message,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// POST /v1/scans
// Body: {"type":"code"|"repo_url","code":...,"repoUrl":...,"branch":...}
func (r *Router) handleCreateScan(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		RepoURL string `json:"repoUrl"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}

	if err := middleware.ValidateScanRequest(body.Type, body.Code, body.RepoURL, body.Branch); err != nil {
		return badRequest(err.Error())
	}

	scan, err := r.scansSvc.CreateScan(req.Context(), appscans.CreateScanCommand{
		Type:    body.Type,
		Code:    body.Code,
		RepoURL: body.RepoURL,
		Branch:  body.Branch,
	})
	if err != nil {
		return err
	}

	middleware.IncrementScans()
	return writeJSON(w, http.StatusCreated, scan, "scan queued")
}

// GET /v1/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	scan, err := r.scansSvc.GetScan(req.Context(), domain.ScanID(id))
	if err != nil {
		return err
	}
	if scan == nil {
		return notFound("scan not found")
	}

	return writeJSON(w, http.StatusOK, scan, "")
}

// GET /v1/scans?page=&pageSize=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("pageSize"))

	list, err := r.scansSvc.ListScans(req.Context(), middleware.ValidatePage(page), size)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, list, "")
}

// GET /v1/scans/{id}/errors?limit=20
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	if r.errsRepo == nil {
		return notFound("scan error log not enabled")
	}

	id := chi.URLParam(req, "id")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.errsRepo.ListByScan(req.Context(), id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, list, "")
}
