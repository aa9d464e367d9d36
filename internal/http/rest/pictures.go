package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/potd_downloader/internal/cycle"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/telemetry"
)

const defaultPictureLimit = 30

type CycleRunner interface {
	Run(ctx context.Context) (*cycle.Result, error)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type PicturesHandler struct {
	runner   CycleRunner
	repo     storage.PictureReadRepository
	username string
	password string
}

// NewPicturesHandler serves the picture history and the manual cycle trigger.
// Basic auth is enforced when username is not empty.
func NewPicturesHandler(runner CycleRunner, repo storage.PictureReadRepository, username, password string) *PicturesHandler {
	return &PicturesHandler{
		runner:   runner,
		repo:     repo,
		username: username,
		password: password,
	}
}

func (h *PicturesHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Get("/pictures", h.HandleListPictures)
	r.Post("/cycles", h.HandleRunCycle)

	return r
}

// HandleListPictures returns the most recent picture records, newest first.
func (h *PicturesHandler) HandleListPictures(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	limit := defaultPictureLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(r.Context(), w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "limit must be a non-negative integer"})

			return
		}

		limit = n
	}

	pictures, err := h.repo.GetPictures(r.Context(), limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list pictures", "err", err)
		writeJSON(r.Context(), w, http.StatusInternalServerError, ErrorResponse{Error: "storage", Message: "failed to list pictures"})

		return
	}

	if pictures == nil {
		pictures = []storage.PictureRecord{}
	}

	writeJSON(r.Context(), w, http.StatusOK, pictures)
}

// HandleRunCycle runs one cycle synchronously. The cycle is not cancelled when the client
// goes away, it would leave a half rotated download directory behind.
func (h *PicturesHandler) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := cycle.WithTrigger(context.WithoutCancel(r.Context()), cycle.TriggerManual)

	result, err := h.runner.Run(ctx)
	if err != nil {
		status, resp := formatCycleError(err)
		telemetry.Annotate(r.Context(), "trigger", cycle.TriggerManual, "cycle_error", resp.Error)
		writeJSON(r.Context(), w, status, resp)

		return
	}

	telemetry.Annotate(r.Context(), "cycle_id", result.ID, "trigger", result.Trigger)

	if result.Picture != nil {
		telemetry.Annotate(r.Context(), "picture", result.Picture.FileName)
	}

	writeJSON(r.Context(), w, http.StatusOK, result)
}

func (h *PicturesHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1

		if !userOK || !passOK {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// formatCycleError maps a cycle failure to an HTTP status and a client facing body.
func formatCycleError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}

	switch potd.ExitCode(err) {
	case potd.ExitLocked:
		resp.Error = "cycle_in_progress"

		return http.StatusConflict, resp
	case potd.ExitRequest:
		resp.Error = "upstream_request"

		return http.StatusBadGateway, resp
	case potd.ExitMetadata:
		resp.Error = "invalid_metadata"

		return http.StatusBadGateway, resp
	case potd.ExitFilesystem:
		resp.Error = "filesystem"

		return http.StatusInternalServerError, resp
	}

	if errors.Is(err, context.DeadlineExceeded) {
		resp.Error = "timeout"

		return http.StatusGatewayTimeout, resp
	}

	resp.Error = "unknown"

	return http.StatusInternalServerError, resp
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
