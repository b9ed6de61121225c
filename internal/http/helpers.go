package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beni/internal/core"
	applog "beni/internal/log"
	"beni/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode JSON response", applog.FieldError, err)
	}
}

type errorResponse struct {
	Errore string `json:"errore"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Errore: msg})
}

// respondError maps domain and storage errors to HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "risorsa non trovata")
	case errors.Is(err, storage.ErrAssetHasEvents):
		writeError(w, http.StatusConflict, "il bene ha eventi collegati")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, "errore interno")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyName,
		core.ErrUnknownCategory,
		core.ErrNegativePurchasePrice,
		core.ErrInvalidUsefulLife,
		core.ErrNegativeResidualValue,
		core.ErrResidualExceedsPurchase,
		core.ErrNegativeCoefficient,
		core.ErrNegativeFixedCost,
		core.ErrMissingSpec,
		core.ErrEmptyDescription,
		core.ErrMissingAssetRef,
		core.ErrZeroOccurredAt,
		core.ErrNegativeUsage,
		core.ErrNegativeDirectAmount,
		core.ErrNegativeUnitPrice,
		core.ErrInvalidAmount,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// pathID extracts the {id} path value as an int64.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: parsedTime}, nil
}

// dateQuery reads a YYYY-MM-DD query parameter, falling back to def when
// absent. A present but malformed value is an error.
func dateQuery(r *http.Request, name string, def core.Date) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	return parseDate(v)
}

// extractClientIP extracts the client IP considering well-known proxy headers.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// euros renders an amount as a fixed two-decimal euro string.
func euros(m core.Money) string {
	return m.Dec().StringFixed(2)
}
