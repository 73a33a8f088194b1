package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/commit"
	"github.com/zombor/ledger-sense/internal/reconcile"
	"github.com/zombor/ledger-sense/internal/upload"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.Len(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Create()
	writeJSON(w, http.StatusCreated, sess.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.PathValue("id")); err != nil {
		jsonError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// formFileFields are accepted for file selection, most specific first
var formFileFields = []string{"files", "file", "image"}

// handleAddFiles queues every file of a multipart selection. Invalid files
// are queued too, in the error state, so the user sees why.
func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request, sess *Session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFormBytes)
	if err := r.ParseMultipartForm(s.maxFormBytes); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "Selection is too large. Upload fewer files at a time.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	for _, field := range formFileFields {
		if fh := r.MultipartForm.File[field]; len(fh) > 0 {
			headers = fh
			break
		}
	}
	if len(headers) == 0 {
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}

	policy := sess.Queue.Policy()
	files := make([]*upload.File, 0, len(headers))
	for _, h := range headers {
		f, err := readFormFile(h, policy)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", h.Filename)
			jsonError(w, "Error reading file", http.StatusBadRequest)
			return
		}
		files = append(files, f)
	}

	added := sess.Queue.AddFiles(files...)
	slog.Info("Files selected", "session", sess.ID, "count", len(added))
	writeJSON(w, http.StatusCreated, sess.State())
}

// readFormFile loads a part. Bytes of files the policy will reject anyway
// are not kept.
func readFormFile(h *multipart.FileHeader, policy upload.Policy) (*upload.File, error) {
	f := &upload.File{
		Name:     h.Filename,
		Size:     h.Size,
		MIMEType: h.Header.Get("Content-Type"),
	}
	if !policy.Validate(f).IsValid {
		return f, nil
	}

	src, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, err
	}
	f.Data = buf.Bytes()
	return f, nil
}

func (s *Server) handleDismissAll(w http.ResponseWriter, r *http.Request, sess *Session) {
	sess.Queue.DismissAll()
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request, sess *Session) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, "Invalid file index", http.StatusBadRequest)
		return
	}
	if err := sess.Queue.Dismiss(index); err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request, sess *Session) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, "Invalid file index", http.StatusBadRequest)
		return
	}
	if _, err := sess.Queue.Resubmit(index); err != nil {
		switch {
		case errors.Is(err, upload.ErrIndexOutOfRange):
			jsonError(w, "File not found", http.StatusNotFound)
		default:
			jsonError(w, "Only failed files can be resubmitted", http.StatusConflict)
		}
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// handleDispatch uploads all idle files and answers once every one of them
// has finished. A client disconnect does not abort the uploads.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, sess *Session) {
	sess.Dispatch(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request, sess *Session) {
	row, err := strconv.Atoi(r.PathValue("row"))
	if err != nil {
		jsonError(w, "Invalid row index", http.StatusBadRequest)
		return
	}

	var req struct {
		Column string `json:"column"`
		Value  string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := sess.Table.EditCell(row, req.Column, req.Value); err != nil {
		switch {
		case errors.Is(err, reconcile.ErrRowOutOfRange):
			jsonError(w, "Row not found", http.StatusNotFound)
		case errors.Is(err, reconcile.ErrUnknownColumn):
			jsonError(w, "Unknown column", http.StatusBadRequest)
		default:
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleAppendRow(w http.ResponseWriter, r *http.Request, sess *Session) {
	var req struct {
		Cells map[string]string `json:"cells"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Cells) == 0 {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sess.Table.AppendRow(req.Cells)
	writeJSON(w, http.StatusCreated, sess.State())
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, sess *Session) {
	var req struct {
		Mode string `json:"mode"`
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := commit.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := sess.Commit(r.Context(), mode, req.Date, auth.FromRequest(r))
	if err != nil {
		var vErr *commit.ValidationError
		switch {
		case errors.As(err, &vErr):
			jsonError(w, vErr.Error(), http.StatusBadRequest)
		case errors.Is(err, commit.ErrCommitFailed):
			slog.Error("Commit failed", "session", sess.ID, "error", err)
			jsonError(w, commit.ErrCommitFailed.Error(), http.StatusBadGateway)
		default:
			slog.Error("Commit failed", "session", sess.ID, "error", err)
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  res,
		"session": sess.State(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *Session) {
	var buf bytes.Buffer
	if err := sess.Table.WriteXLSX(&buf); err != nil {
		slog.Error("Error exporting table", "session", sess.ID, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.xlsx"`)
	w.Write(buf.Bytes())
}
