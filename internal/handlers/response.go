package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(middleware.RequestIDHeader)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID(r),
		},
	}
}

// decodeJSON reads a JSON body strictly: unknown fields and trailing data
// are rejected. An empty body decodes to the zero value when allowEmpty.
func decodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func invalidBody(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
}

// handleServiceError maps service and game errors onto the API error
// envelope. Unexpected errors are logged and reported generically.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var (
		validation   *services.ValidationError
		conflict     *services.ConflictError
		notFound     *services.NotFoundError
		unauthorized *services.UnauthorizedError
		forbidden    *services.ForbiddenError
		rateLimited  *services.RateLimitError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &rateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimited.Message, r))

	case errors.Is(err, game.ErrInvalidTurnCount):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"requested_turns": err.Error()}, r))
	case errors.Is(err, game.ErrUnknownMode):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"mode": err.Error()}, r))
	case errors.Is(err, game.ErrUnknownFocus):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"artist_focus": err.Error()}, r))
	case errors.Is(err, game.ErrUnknownArtist):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"artist_id": err.Error()}, r))
	case errors.Is(err, game.ErrMissingUser):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Authentication required", r))
	case errors.Is(err, game.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
	case errors.Is(err, game.ErrNoActiveSession):
		writeJSON(w, http.StatusConflict, errorResp("NO_ACTIVE_SESSION", "There is no active session", r))
	case errors.Is(err, game.ErrTurnSequenceViolation):
		writeJSON(w, http.StatusConflict, errorResp("TURN_SEQUENCE_VIOLATION", "That turn is not the current turn", r))
	case errors.Is(err, game.ErrSessionIncomplete):
		writeJSON(w, http.StatusConflict, errorResp("SESSION_INCOMPLETE", "Complete every turn before finishing, or end the session early", r))
	case errors.Is(err, game.ErrNoTurnsRemaining):
		writeJSON(w, http.StatusConflict, errorResp("NO_TURNS_REMAINING", "Every planned turn is complete", r))

	default:
		if log != nil {
			log.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID(r)),
				zap.Bool("store_failure", game.IsAdapterFailure(err)),
				zap.Error(err),
			)
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Something went wrong. Please try again.", r))
	}
}
