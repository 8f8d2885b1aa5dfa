package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/ingest"
	"github.com/cellarworks/cellar-cli/internal/model"
)

// maxUploadBytes caps wine list uploads; lists are text, anything
// bigger is not a wine list.
const maxUploadBytes = 10 << 20

// Server exposes the catalog and the ingestion pipeline over HTTP.
type Server struct {
	ingest              *ingest.Service
	store               catalog.Store
	storeDriver         string
	extractorConfigured bool
}

// New wires the HTTP boundary.
func New(ing *ingest.Service, store catalog.Store, storeDriver string, extractorConfigured bool) *Server {
	return &Server{
		ingest:              ing,
		store:               store,
		storeDriver:         storeDriver,
		extractorConfigured: extractorConfigured,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute)) // uploads run the pipeline synchronously

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Post("/wines/upload", s.handleUpload)
		api.Get("/wines", s.handleListWines)
		api.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Wines   any          `json:"wines"`
	Stats   *uploadStats `json:"stats,omitempty"`
}

type uploadStats struct {
	Processed     int `json:"processed"`
	Errors        int `json:"errors"`
	DatabaseTotal int `json:"databaseTotal"`
}

// handleUpload accepts a wine list as a multipart file upload ("file"
// field) or as a JSON body {"text": "..."} and runs the full ingestion
// pipeline before answering.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	text, err := readUploadText(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Success: false, Message: err.Error(), Wines: []any{}})
		return
	}
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Success: false, Message: "no wine list content provided", Wines: []any{}})
		return
	}

	run, stats, err := s.ingest.IngestText(r.Context(), text)
	if err != nil {
		zap.L().Error("upload ingestion failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Success: false, Message: "ingestion failed", Wines: []any{}})
		return
	}

	wines := stats.Sample
	if wines == nil {
		wines = []model.WineRecord{} // keep the JSON array non-null
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Message: fmt.Sprintf("run %s: processed %d of %d lines", run.ID, stats.Processed, stats.TotalLines),
		Wines:   wines,
		Stats: &uploadStats{
			Processed:     stats.Processed,
			Errors:        stats.Errors,
			DatabaseTotal: stats.DatabaseTotal,
		},
	})
}

func readUploadText(r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes) // nil w: limit only, no reply

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", fmt.Errorf("invalid multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing file field")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read uploaded file")
		}
		return string(data), nil
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request body")
	}
	return req.Text, nil
}

type listResponse struct {
	Wines      any        `json:"wines"`
	Pagination pagination `json:"pagination"`
}

type pagination struct {
	Total       int `json:"total"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

func (s *Server) handleListWines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ListFilter{
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("pageSize"), catalog.DefaultPageSize),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	page, err := s.store.ListWines(r.Context(), filter)
	if err != nil {
		zap.L().Error("list wines failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list wines failed"})
		return
	}

	if page.Wines == nil {
		page.Wines = []model.WineRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Wines: page.Wines,
		Pagination: pagination{
			Total:       page.Total,
			TotalPages:  page.TotalPages,
			CurrentPage: page.CurrentPage,
			PageSize:    page.PageSize,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.CountWines(r.Context())
	if err != nil {
		zap.L().Error("status count failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"extractorConfigured": s.extractorConfigured,
		"storeDriver":         s.storeDriver,
		"databaseTotal":       total,
	})
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}
