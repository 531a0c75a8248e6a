package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fidera/internal/auth"
	"fidera/internal/domain"
	"fidera/internal/service"
)

// FileLifecycle содержит операции жизненного цикла, которые нужны HTTP слою
type FileLifecycle interface {
	Stage(ctx context.Context, in service.StageInput) (*domain.StageResult, error)
	Confirm(ctx context.Context, id uuid.UUID, requester string, expiryHours int) (*domain.File, error)
	GetFile(ctx context.Context, id uuid.UUID, requester string) (*domain.File, error)
	GetMetadata(ctx context.Context, id uuid.UUID, requester string) (domain.Metadata, error)
	OpenContent(ctx context.Context, id uuid.UUID, requester string) (*domain.File, io.ReadCloser, int64, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.File, error)
}

type FileHandler struct {
	files          FileLifecycle
	maxUploadBytes int64
}

type errorResponse struct {
	Error string `json:"error"`
}

type metadataResponse struct {
	FileID   uuid.UUID       `json:"file_id"`
	Metadata domain.Metadata `json:"metadata"`
}

type listResponse struct {
	Files []domain.File `json:"files"`
}

func NewFileHandler(files FileLifecycle, maxUploadBytes int64) *FileHandler {
	return &FileHandler{
		files:          files,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes монтирует file API в роутер
func (h *FileHandler) Routes(r chi.Router) {
	r.Post("/files/stage", h.StageFile)
	r.Get("/files", h.ListFiles)

	r.Route("/files/{uuid}", func(r chi.Router) {
		r.Get("/", h.GetFile)
		r.Post("/confirm", h.ConfirmFile)
		r.Get("/metadata", h.GetMetadata)
		r.Get("/content", h.GetContent)
	})
}

// StageFile принимает multipart поле file и возвращает сырые метаданные и чистое превью
func (h *FileHandler) StageFile(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	// Поле file читается потоком, без буферизации всей формы в памяти
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		if err != nil {
			writeUploadError(w, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		result, err := h.files.Stage(r.Context(), service.StageInput{
			Body:        part,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			OwnerID:     auth.UserID(r.Context()),
		})
		part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeUploadError(w, maxErr)
				return
			}
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
		return
	}
}

func (h *FileHandler) ConfirmFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	expiryHours := 0
	if raw := r.URL.Query().Get("expiry_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expiry_hours must be an integer")
			return
		}
		expiryHours = n
	}

	file, err := h.files.Confirm(r.Context(), id, auth.UserID(r.Context()), expiryHours)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	file, err := h.files.GetFile(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *FileHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	meta, err := h.files.GetMetadata(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse{FileID: id, Metadata: meta})
}

// GetContent стримит очищенную копию с inline disposition
func (h *FileHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	file, body, size, err := h.files.OpenContent(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer body.Close()

	contentType := file.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(file.Name))
	w.Header().Set("Cache-Control", "no-store")
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		// заголовки уже ушли, остаётся только залогировать
		log.Warn().Err(err).Str("file_id", id.String()).Msg("content stream interrupted")
	}
}

func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListByOwner(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []domain.File{}
	}
	writeJSON(w, http.StatusOK, listResponse{Files: files})
}

func fileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file uuid")
		return uuid.Nil, false
	}
	return id, true
}

func contentDisposition(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r > 127 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, ascii, url.PathEscape(name))
}

// statusFor переводит доменные ошибки в HTTP статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, message)
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "malformed multipart body")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
