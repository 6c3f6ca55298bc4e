package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/services"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxArtworkBytes     = 10 << 20

	// MediaPrefix is the URL path uploaded artwork is served under.
	MediaPrefix = "/media/"
)

var artworkExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Sessions is the game surface the session routes drive.
type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID, req models.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Session, error)
	Current(ctx context.Context, userID uuid.UUID) (*models.Session, *models.TurnView, error)
	RequestTurn(ctx context.Context, userID uuid.UUID, sessionID string) (*models.TurnView, error)
	CompleteTurn(ctx context.Context, userID uuid.UUID, sessionID string, turnNumber int, reflection string) (*services.TurnCompletion, error)
	Finalize(ctx context.Context, userID uuid.UUID, sessionID, finalReflection string) (*services.CompletedSession, error)
	EndEarly(ctx context.Context, userID uuid.UUID, sessionID, finalReflection string) (*services.CompletedSession, error)
	UpdateShare(ctx context.Context, userID uuid.UUID, sessionID string, settings models.ShareSettings) (*models.Session, error)
	AttachArtwork(ctx context.Context, userID uuid.UUID, sessionID, imageURL string) (*models.Session, error)
	History(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.Session, int, error)
}

type SessionHandler struct {
	sessions    Sessions
	storagePath string
	logger      *zap.Logger
}

func NewSessionHandler(sessions Sessions, storagePath string, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, storagePath: storagePath, logger: logger}
}

// sessionID reads and validates the {id} route parameter.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return "", false
	}
	return id, true
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		invalidBody(w, r)
		return
	}

	sess, err := h.sessions.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.SessionFilter{Limit: defaultHistoryLimit}
	fields := map[string]string{}

	if v := q.Get("mode"); v != "" {
		mode, err := game.ParseMode(v)
		if err != nil {
			fields["mode"] = err.Error()
		}
		filter.Mode = mode
	}
	switch v := q.Get("status"); v {
	case "", "active", "completed", "ended-early":
		filter.Status = v
	default:
		fields["status"] = "Status must be active, completed, or ended-early"
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			fields["limit"] = fmt.Sprintf("Limit must be between 1 and %d", maxHistoryLimit)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["offset"] = "Offset must be zero or greater"
		}
		filter.Offset = n
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	sessions, total, err := h.sessions.History(r.Context(), middleware.GetUserID(r.Context()), filter)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sess, turn, err := h.sessions.Current(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":      sess,
		"current_turn": turn,
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) RequestTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	turn, err := h.sessions.RequestTurn(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

func (h *SessionHandler) CompleteTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid turn number", r))
		return
	}

	var req models.CompleteTurnRequest
	if err := decodeJSON(r, &req, true); err != nil {
		invalidBody(w, r)
		return
	}

	out, err := h.sessions.CompleteTurn(r.Context(), middleware.GetUserID(r.Context()), id, number, req.Reflection)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.sessions.Finalize)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.sessions.EndEarly)
}

type closeFunc func(ctx context.Context, userID uuid.UUID, sessionID, finalReflection string) (*services.CompletedSession, error)

func (h *SessionHandler) close(w http.ResponseWriter, r *http.Request, fn closeFunc) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req models.FinalReflectionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		invalidBody(w, r)
		return
	}

	out, err := fn(r.Context(), middleware.GetUserID(r.Context()), id, req.FinalReflection)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *SessionHandler) UpdateShare(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req models.ShareSettings
	if err := decodeJSON(r, &req, false); err != nil {
		invalidBody(w, r)
		return
	}

	sess, err := h.sessions.UpdateShare(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// AttachArtwork accepts either a multipart "image" upload, stored under the
// storage path and served from MediaPrefix, or a JSON {"image_url": ...}.
func (h *SessionHandler) AttachArtwork(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	var imageURL, stored string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		sess, err := h.sessions.Get(r.Context(), userID, id)
		if err != nil {
			handleServiceError(w, r, h.logger, err)
			return
		}
		if !sess.Terminal() {
			handleServiceError(w, r, h.logger, &services.ConflictError{Message: "Session must be finished first"})
			return
		}
		url, dst, status, resp := h.saveUpload(w, r, userID)
		if resp != nil {
			writeJSON(w, status, resp)
			return
		}
		imageURL, stored = url, dst
	} else {
		var req struct {
			ImageURL string `json:"image_url"`
		}
		if err := decodeJSON(r, &req, false); err != nil {
			invalidBody(w, r)
			return
		}
		imageURL = strings.TrimSpace(req.ImageURL)
		if !strings.HasPrefix(imageURL, "https://") && !strings.HasPrefix(imageURL, "http://") {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"image_url": "Image URL must be an http(s) URL"}, r))
			return
		}
	}

	sess, err := h.sessions.AttachArtwork(r.Context(), userID, id, imageURL)
	if err != nil {
		if stored != "" {
			if rmErr := os.Remove(stored); rmErr != nil {
				h.logger.Warn("failed to remove unattached artwork", zap.String("path", stored), zap.Error(rmErr))
			}
		}
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) saveUpload(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (string, string, int, interface{}) {
	if r.ContentLength > maxArtworkBytes {
		return "", "", http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Image exceeds 10MB limit", r)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxArtworkBytes)

	file, _, err := r.FormFile("image")
	if err != nil {
		return "", "", http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No image provided", r)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	ext, ok := artworkExtensions[http.DetectContentType(buf[:n])]
	if !ok {
		return "", "", http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Image must be PNG, JPEG, GIF or WebP", r)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read image", r)
	}

	rel := path.Join("users", userID.String(), "artwork", uuid.New().String()+ext)
	dst := filepath.Join(h.storagePath, filepath.FromSlash(rel))
	if err := writeFile(dst, file); err != nil {
		h.logger.Error("failed to store artwork", zap.String("path", dst), zap.Error(err))
		return "", "", http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store image", r)
	}

	return MediaPrefix + rel, dst, 0, nil
}

func writeFile(dst string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}
