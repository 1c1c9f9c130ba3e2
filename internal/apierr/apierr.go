// Package apierr classifies domain errors into the status codes the REST API
// and the live socket report.
package apierr

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/reactions"
	"github.com/vidfriends/watchparty/internal/repositories"
	"github.com/vidfriends/watchparty/internal/social"
	"github.com/vidfriends/watchparty/internal/storage"
	"github.com/vidfriends/watchparty/internal/videos"
)

var (
	// ErrInvalidInput indicates a request body or parameter that could not be decoded.
	ErrInvalidInput = errors.New("invalid request")
	// ErrRateLimited indicates the caller exceeded its allowance.
	ErrRateLimited = errors.New("too many requests")
	// ErrUnavailable indicates an optional backend that is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

var badRequest = []error{
	ErrInvalidInput,
	chat.ErrEmptyMessage,
	chat.ErrMessageTooLong,
	chat.ErrInvalidReceiver,
	reactions.ErrTimestampOutOfRange,
	videos.ErrInvalidVideo,
	videos.ErrEmptyComment,
	videos.ErrCommentTooLong,
	videos.ErrInvalidWatchTime,
	social.ErrSelfFollow,
	social.ErrInvalidUsername,
	social.ErrAboutTooLong,
	social.ErrEmptyComment,
	social.ErrCommentTooLong,
	storage.ErrEmptyFilename,
	repositories.ErrConstraint,
}

// Status maps err onto an HTTP status code. Unknown errors are 500.
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text for err. Internal failures are not
// described beyond their status.
func Message(err error) string {
	status := Status(err)
	switch status {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "already exists"
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + " failed " + verrs[0].Tag() + " validation"
	}
	return rootMessage(err, status)
}

func rootMessage(err error, status int) string {
	switch status {
	case http.StatusUnauthorized:
		return access.ErrUnauthenticated.Error()
	case http.StatusForbidden:
		return access.ErrForbidden.Error()
	case http.StatusTooManyRequests:
		return ErrRateLimited.Error()
	case http.StatusServiceUnavailable:
		return ErrUnavailable.Error()
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return http.StatusText(status)
}
