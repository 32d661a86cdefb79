package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/grape4ever/thesis-archiver/constants"
	"github.com/grape4ever/thesis-archiver/internal/ledger"
	"github.com/grape4ever/thesis-archiver/internal/pipeline"
)

const maxUploadBytes = 64 << 20

// Server exposes the upload drop-box and the run trigger over HTTP.
type Server struct {
	UploadsRoot string
	Runner      func(r *http.Request) (pipeline.Summary, error)
	Logger      *slog.Logger
}

func New(uploadsRoot string, runner func(r *http.Request) (pipeline.Summary, error), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{UploadsRoot: uploadsRoot, Runner: runner, Logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/upload", s.handleUpload)
	r.Post("/api/runs", s.handleRun)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file detected"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file detected"})
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.Logger.Warn("close upload failed", "error", err)
		}
	}()

	name := SanitizeFilename(header.Filename)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file selected"})
		return
	}
	ext := constants.NormalizeExt(filepath.Ext(name))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file type not allowed"})
		return
	}

	if err := os.MkdirAll(s.UploadsRoot, 0o755); err != nil {
		s.Logger.Error("upload.mkdir.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store file"})
		return
	}
	dst := filepath.Join(s.UploadsRoot, name)
	out, err := os.Create(dst)
	if err != nil {
		s.Logger.Error("upload.create.failed", "path", dst, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store file"})
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		s.Logger.Error("upload.write.failed", "path", dst, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store file"})
		return
	}
	if err := out.Close(); err != nil {
		s.Logger.Error("upload.close.failed", "path", dst, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store file"})
		return
	}

	s.Logger.Info("upload.ok", "filename", name)
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "file uploaded",
		"filename": name,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Runner(r)
	if err != nil {
		var conflict *ledger.TitleConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   conflict.Error(),
				"summary": summary,
			})
			return
		}
		s.Logger.Error("run.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SanitizeFilename reduces an uploaded filename to a safe base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
