package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vidfriends/watchparty/internal/apierr"
	"github.com/vidfriends/watchparty/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError maps err onto its status code. Internal failures are logged
// with their cause and reported generically.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apierr.Status(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request error", "error", err)
	}
	respondJSON(ctx, w, status, map[string]string{"error": apierr.Message(err)})
}

// decodeJSON reads a bounded JSON body into dst and validates its struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrInvalidInput, err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
