// Package web implements the upload/process HTTP API. Rendering runs
// in a dicomviz subprocess per request so a crash in the rasteriser
// cannot take down the server, and produced images are copied into the
// results directory for static serving.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dicomviz/pkg/config"
)

// maxUploadBytes bounds one multipart upload request.
const maxUploadBytes = 512 << 20

// uploadExtensions lists the accepted slice file extensions.
var uploadExtensions = map[string]bool{
	".dcm": true,
	".ima": true,
}

// Server handles uploads and dispatches rendering subprocesses.
type Server struct {
	cfg     *config.Config
	log     *log.Logger
	binPath string
}

// NewServer builds a server from cfg. The upload and results
// directories are created up front; the running executable is re-used
// as the rendering subprocess.
func NewServer(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.ResultsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	bin, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return &Server{cfg: cfg, log: logger, binPath: bin}, nil
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.Post("/process", s.handleProcess)
	r.Post("/process_3d", s.handleProcess3D)
	r.Handle("/static/results/*", http.StripPrefix("/static/results/",
		http.FileServer(http.Dir(s.cfg.Server.ResultsDir))))

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// handleUpload stores the valid files of a multipart upload under a
// fresh per-request directory and returns its id.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parsing upload: %w", err))
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	uploadID := uuid.New().String()
	dir := filepath.Join(s.cfg.Server.UploadDir, uploadID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	saved := 0
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !uploadExtensions[strings.ToLower(filepath.Ext(name))] {
			s.log.Warn("skipping upload with unsupported extension", "file", name)
			continue
		}
		if err := saveUploadedFile(fh, filepath.Join(dir, name)); err != nil {
			s.log.Warn("failed to save uploaded file", "file", name, "err", err)
			continue
		}
		saved++
	}

	if saved == 0 {
		os.RemoveAll(dir)
		s.writeError(w, http.StatusBadRequest, errors.New("no valid DICOM files in upload"))
		return
	}

	s.log.Info("stored upload", "id", uploadID, "files", saved)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"upload_id":  uploadID,
		"file_count": saved,
	})
}

func saveUploadedFile(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// processRequest is the body of /process and /process_3d.
type processRequest struct {
	UploadID string `json:"upload_id"`
	ViewType string `json:"view_type"`
}

// handleProcess runs the 2D or 3D pipeline in a subprocess and returns
// URLs of the produced images.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, inputDir, ok := s.decodeProcessRequest(w, r)
	if !ok {
		return
	}

	viewType := req.ViewType
	if viewType == "" {
		viewType = "2d"
	}
	var subcommand string
	switch viewType {
	case "2d":
		subcommand = "view2d"
	case "3d":
		subcommand = "view3d"
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown view_type %q", req.ViewType))
		return
	}

	outDir, err := os.MkdirTemp("", "dicomviz-*")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(outDir)

	args := []string{subcommand, "--folder", inputDir, "--output", outDir}
	if subcommand == "view2d" {
		args = append(args, "--frames")
	}
	_, stderr, err := s.runSubprocess(r.Context(), args)
	if err != nil {
		s.log.Error("processing failed", "id", req.UploadID, "view", viewType, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
			"output":  stderr,
		})
		return
	}

	urls, err := s.publishResults(outDir, req.UploadID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"images":  urls,
	})
}

// handleProcess3D runs the point-cloud sampler in a subprocess and
// relays its JSON output.
func (s *Server) handleProcess3D(w http.ResponseWriter, r *http.Request) {
	req, inputDir, ok := s.decodeProcessRequest(w, r)
	if !ok {
		return
	}

	stdout, stderr, err := s.runSubprocess(r.Context(), []string{"pointcloud", "--folder", inputDir})
	if err != nil {
		s.log.Error("point cloud sampling failed", "id", req.UploadID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
			"output":  stderr,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, stdout)
}

// decodeProcessRequest parses the request body and resolves the upload
// directory, writing the error response itself on failure.
func (s *Server) decodeProcessRequest(w http.ResponseWriter, r *http.Request) (processRequest, string, bool) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return req, "", false
	}
	if req.UploadID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing upload_id"))
		return req, "", false
	}
	if _, err := uuid.Parse(req.UploadID); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload_id: %w", err))
		return req, "", false
	}

	dir := filepath.Join(s.cfg.Server.UploadDir, req.UploadID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown upload %s", req.UploadID))
		return req, "", false
	}
	return req, dir, true
}

// runSubprocess invokes the dicomviz binary with args under the
// configured timeout. Stdout and stderr come back separately so
// handlers can relay stdout verbatim; the CLI logs to stderr even on
// success.
func (s *Server) runSubprocess(ctx context.Context, args []string) (stdout, stderr string, err error) {
	timeout := time.Duration(s.cfg.Server.ProcessTimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binPath, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	s.log.Debug("running subprocess", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return outBuf.String(), errBuf.String(), fmt.Errorf("processing timed out after %s", timeout)
		}
		return outBuf.String(), errBuf.String(), fmt.Errorf("subprocess failed: %w", err)
	}
	return outBuf.String(), errBuf.String(), nil
}

// publishResults copies every file under outDir into the results
// directory, prefixing names with the upload id, and returns the URLs
// in deterministic order.
func (s *Server) publishResults(outDir, uploadID string) ([]string, error) {
	var urls []string
	err := filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}
		name := uploadID + "_" + strings.ReplaceAll(rel, string(filepath.Separator), "_")
		if err := copyFile(path, filepath.Join(s.cfg.Server.ResultsDir, name)); err != nil {
			return err
		}
		urls = append(urls, "/static/results/"+name)
		return nil
	})
	return urls, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
