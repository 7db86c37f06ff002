package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/statement-extract/bank-statement-api/internal/models"
	"github.com/statement-extract/bank-statement-api/internal/services"
	"github.com/statement-extract/bank-statement-api/internal/utils"
)

const (
	MaxFileSize = 10 << 20 // 10MB
)

type StatementHandler struct {
	service services.StatementService
	logger  *utils.Logger
}

func NewStatementHandler(service services.StatementService, logger *utils.Logger) *StatementHandler {
	return &StatementHandler{
		service: service,
		logger:  logger,
	}
}

func (h *StatementHandler) ExtractStatement(w http.ResponseWriter, r *http.Request) {
	// Reject oversized requests before reading the body
	if r.ContentLength > MaxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds 10MB limit"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize)

	if err := r.ParseMultipartForm(MaxFileSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			h.respondError(w, utils.NewBadRequestError("File size exceeds 10MB limit"))
			return
		}
		h.respondError(w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	if !looksLikePDF(header.Filename, header.Header.Get("Content-Type")) {
		h.respondError(w, utils.NewBadRequestError("Only PDF bank statements are accepted"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		h.respondError(w, utils.NewInternalError("Failed to read file"))
		return
	}

	if len(data) > MaxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds 10MB limit"))
		return
	}

	if len(data) == 0 {
		h.respondError(w, utils.NewBadRequestError("Uploaded file is empty"))
		return
	}

	h.logger.Info("Statement upload received",
		"filename", header.Filename,
		"size", len(data))

	req := &models.UploadRequest{
		File:     data,
		Filename: header.Filename,
	}

	resp, err := h.service.ExtractStatement(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *StatementHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if id == "" {
		h.respondError(w, utils.NewBadRequestError("Statement ID is required"))
		return
	}

	st, err := h.service.GetStatement(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, st)
}

func (h *StatementHandler) DownloadStatement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if id == "" {
		h.respondError(w, utils.NewBadRequestError("Statement ID is required"))
		return
	}

	st, data, err := h.service.DownloadStatement(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write PDF response", "error", err, "id", id)
	}
}

func (h *StatementHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	statements, err := h.service.ListStatements(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"statements": statements})
}

// looksLikePDF accepts .pdf filenames as well as an explicit PDF content
// type; browsers are inconsistent about which of the two they send.
func looksLikePDF(filename, contentType string) bool {
	if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
		return true
	}
	return contentType == "application/pdf"
}

func (h *StatementHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *StatementHandler) respondError(w http.ResponseWriter, err error) {
	var status int
	body := map[string]any{}

	switch e := err.(type) {
	case *utils.AppError:
		status = e.StatusCode
		body["error"] = e.Message
		if len(e.Detail) > 0 {
			body["detail"] = e.Detail
		}
	default:
		status = http.StatusInternalServerError
		body["error"] = "Internal server error"
	}

	h.logger.Error("Request error", "status", status, "error", body["error"])

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
