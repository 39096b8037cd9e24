//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/service"
	"github.com/himanishpuri/songid/internal/storage"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/himanishpuri/songid/pkg/signature"
)

const maxUploadBytes = 50 << 20

// Backend is the part of the service the HTTP API uses.
type Backend interface {
	SignatureFromFile(ctx context.Context, path string) (*signature.Signature, error)
	RecognizeFile(ctx context.Context, path string) (*recognize.Song, error)
	RecognizeSignature(ctx context.Context, sig *signature.Signature) (*recognize.Song, error)
	History(limit int) ([]storage.Recognition, error)
	HistoryCount() (int, error)
	GetRecognition(id string) (*storage.Recognition, error)
	DeleteRecognition(id string) error
	ExportHistory(w io.Writer) error
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	backend Backend
	config  *ServerConfig
	log     *logger.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	AllowedOrigins []string
}

func NewServer(backend Backend, config *ServerConfig) *Server {
	return &Server{
		backend: backend,
		config:  config,
		log:     logger.GetLogger().With("server"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "songid API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":             "GET /health",
			"metrics":            "GET /api/health/metrics",
			"signature":          "POST /api/signature",
			"decode":             "POST /api/decode",
			"recognize":          "POST /api/recognize",
			"recognizeSignature": "POST /api/recognize/signature",
			"history":            "GET /api/history",
			"export":             "GET /api/history/export",
			"getRecognition":     "GET /api/history/{id}",
			"deleteRecognition":  "DELETE /api/history/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	n, err := s.backend.HistoryCount()
	if err != nil {
		s.log.Errorf("Failed to count recognitions: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:           "healthy",
		DatabasePath:     s.config.DBPath,
		RecognitionCount: n,
		SampleRate:       signature.SampleRate,
	})
}

// saveUpload stores the multipart "audio" field in the temp dir. The caller
// must call cleanup.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (path string, cleanup func(), ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return "", nil, false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return "", nil, false
	}
	defer file.Close()

	out, err := os.CreateTemp(s.config.TempDir, "upload_*_"+filepath.Base(header.Filename))
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return "", nil, false
	}
	cleanup = func() { os.Remove(out.Name()) }

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return "", nil, false
	}
	if err := out.Close(); err != nil {
		cleanup()
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return "", nil, false
	}

	s.log.Infof("Received upload %s (%d bytes)", header.Filename, header.Size)
	return out.Name(), cleanup, true
}

// audioError maps processing errors to a status code.
func (s *Server) audioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSilent):
		s.respondError(w, http.StatusUnprocessableEntity, "audio is silent")
	case errors.Is(err, signature.ErrInputTooShort):
		s.respondError(w, http.StatusUnprocessableEntity, "audio is too short")
	case errors.Is(err, signature.ErrCorruptSignature), errors.Is(err, signature.ErrUnsupportedSampleRate):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "recognition timed out")
	default:
		s.log.Errorf("Request failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSignature handles POST /api/signature (multipart file upload)
func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, cleanup, ok := s.saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	sig, err := s.backend.SignatureFromFile(ctx, path)
	if err != nil {
		s.audioError(w, err)
		return
	}
	uri, err := signature.EncodeURI(sig)
	if err != nil {
		s.audioError(w, err)
		return
	}

	resp := newSignatureResponse(sig, false)
	resp.URI = uri
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*signature.Signature, bool) {
	var req SignatureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxURILength+1024)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	sig, err := signature.DecodeURI(req.URI)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid signature: %v", err))
		return nil, false
	}
	return sig, true
}

// handleDecode handles POST /api/decode
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	sig, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	withPeaks := r.URL.Query().Get("peaks") == "true"
	s.respondJSON(w, http.StatusOK, newSignatureResponse(sig, withPeaks))
}

func (s *Server) respondSong(w http.ResponseWriter, song *recognize.Song, err error) {
	if errors.Is(err, recognize.ErrNoMatch) {
		s.respondJSON(w, http.StatusOK, RecognizeResponse{Matched: false})
		return
	}
	if err != nil {
		s.audioError(w, err)
		return
	}
	dto := newSongDTO(song)
	s.respondJSON(w, http.StatusOK, RecognizeResponse{Matched: true, Song: &dto})
}

// handleRecognize handles POST /api/recognize (multipart file upload)
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, cleanup, ok := s.saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	song, err := s.backend.RecognizeFile(ctx, path)
	s.respondSong(w, song, err)
}

// handleRecognizeSignature handles POST /api/recognize/signature, for
// clients that build the signature themselves
func (s *Server) handleRecognizeSignature(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sig, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	song, err := s.backend.RecognizeSignature(ctx, sig)
	s.respondSong(w, song, err)
}

// handleHistory handles GET /api/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	rows, err := s.backend.History(limit)
	if err != nil {
		s.log.Errorf("Failed to list history: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	if rows == nil {
		rows = []storage.Recognition{}
	}
	s.respondJSON(w, http.StatusOK, HistoryResponse{Recognitions: rows, Count: len(rows)})
}

// handleExport handles GET /api/history/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="songid-history.csv"`)
	if err := s.backend.ExportHistory(w); err != nil {
		s.log.Errorf("Failed to export history: %v", err)
	}
}

func (s *Server) handleGetRecognition(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.backend.GetRecognition(id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Recognition not found")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to get recognition %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve recognition")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecognition(w http.ResponseWriter, r *http.Request, id string) {
	err := s.backend.DeleteRecognition(id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Recognition not found")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to delete recognition %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete recognition")
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteResponse{Message: "Recognition deleted", ID: id})
}

func (s *Server) handleSignatureRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleSignature(w, r)
}

func (s *Server) handleDecodeRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleDecode(w, r)
}

func (s *Server) handleRecognizeRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleRecognize(w, r)
}

func (s *Server) handleRecognizeSignatureRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleRecognizeSignature(w, r)
}

func (s *Server) handleHistoryRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleHistory(w, r)
}

func (s *Server) handleExportRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleExport(w, r)
}

// handleRecognitionRoute routes requests to /api/history/{id}
func (s *Server) handleRecognitionRoute(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/history/"):]
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Recognition ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetRecognition(w, r, id)
	case http.MethodDelete:
		s.handleDeleteRecognition(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
