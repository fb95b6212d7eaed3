package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ashureev/legalchat/internal/budget"
	"github.com/ashureev/legalchat/internal/chat"
	"github.com/ashureev/legalchat/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxUploadBytes = 20 << 20
	multipartMemory       = 8 << 20

	detailAgentUnavailable = "Legal AI Agent not available"
	historyClearedMessage  = "Conversation history cleared successfully"
)

// TurnRunner runs chat turns and history resets.
type TurnRunner interface {
	Turn(ctx context.Context, req domain.ChatTurnRequest) (*domain.ChatTurnResponse, error)
	ResetHistory(ctx context.Context) error
	AgentReady() bool
}

// ChatHandler serves the chat, clear and health endpoints.
type ChatHandler struct {
	runner         TurnRunner
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewChatHandler creates a chat handler. Request bodies above maxUploadBytes
// are rejected with 413.
func NewChatHandler(runner TurnRunner, maxUploadBytes int64, logger *slog.Logger) *ChatHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{runner: runner, maxUploadBytes: maxUploadBytes, logger: logger}
}

// RegisterRoutes registers chat routes. postMiddleware wraps the POST routes only.
func (h *ChatHandler) RegisterRoutes(r chi.Router, postMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(postMiddleware...)
		r.Post("/chat", h.Chat)
		r.Post("/chat/clear", h.Clear)
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	AgentReady bool   `json:"agent_ready"`
}

// Health reports liveness and whether the reasoning agent is initialized.
func (h *ChatHandler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "healthy", AgentReady: h.runner.AgentReady()})
}

// Chat handles POST /chat with fields message, document, image and context.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.runner.AgentReady() {
		Error(w, http.StatusServiceUnavailable, detailAgentUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	req, err := h.parseTurnRequest(r)
	if err != nil {
		if isBodyTooLarge(err) {
			Error(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body too large. Maximum allowed: %d bytes.", h.maxUploadBytes))
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.runner.Turn(r.Context(), req)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Clear handles POST /chat/clear.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.ResetHistory(r.Context()); err != nil {
		h.writeTurnError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": historyClearedMessage})
}

func (h *ChatHandler) writeTurnError(w http.ResponseWriter, err error) {
	var exceeded *budget.ExceededError
	switch {
	case errors.As(err, &exceeded):
		Error(w, http.StatusBadRequest, exceeded.Error())
	case errors.Is(err, chat.ErrAgentUnavailable):
		Error(w, http.StatusServiceUnavailable, detailAgentUnavailable)
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message is required")
	default:
		h.logger.Error("Error in chat endpoint", "error", err)
		Error(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
	}
}

func (h *ChatHandler) parseTurnRequest(r *http.Request) (domain.ChatTurnRequest, error) {
	var req domain.ChatTurnRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return req, fmt.Errorf("invalid multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("invalid form: %w", err)
	}

	req.Message = r.FormValue("message")
	if strings.TrimSpace(req.Message) == "" {
		return req, chat.ErrEmptyMessage
	}
	if values, ok := r.Form["context"]; ok && len(values) > 0 {
		ctxText := values[0]
		req.Context = &ctxText
	}

	var err error
	if req.Document, err = readUpload(r, "document"); err != nil {
		return req, err
	}
	if req.Image, err = readUpload(r, "image"); err != nil {
		return req, err
	}
	return req, nil
}

// readUpload returns the named file part, or nil when the field is absent or empty.
func readUpload(r *http.Request, field string) (*domain.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" && header.Size == 0 {
		return nil, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &domain.Upload{
		Filename:    header.Filename,
		ContentType: partContentType(header),
		Data:        data,
	}, nil
}

func partContentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
