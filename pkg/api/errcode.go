package api

import (
	"errors"
	"net/http"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/engine"
)

// mapEngineError maps an apperr.Kind (and the SecurityError case that
// carries a violation vector) to the §6 external error code and an HTTP
// status, the way the teacher's errors.go maps services.ValidationError/
// ErrNotFound/ErrNotCancellable/ErrAlreadyExists to echo.HTTPError.
func mapEngineError(err error) (status int, code string, violations interface{}) {
	var secErr *engine.SecurityError
	if errors.As(err, &secErr) {
		return http.StatusUnprocessableEntity, "security_violation", secErr.Violations
	}

	switch apperr.KindOf(err) {
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest, "invalid_request", nil
	case apperr.KindNoProvidersAvailable:
		return http.StatusServiceUnavailable, "no_providers_available", nil
	case apperr.KindProviderFailure:
		return http.StatusBadGateway, "generation_failed", nil
	case apperr.KindSandboxFailure:
		return http.StatusUnprocessableEntity, "execution_failed", nil
	case apperr.KindNotFound:
		return http.StatusNotFound, "not_found", nil
	case apperr.KindCacheFailure:
		return http.StatusInternalServerError, "cache_error", nil
	case apperr.KindCancelled:
		return http.StatusRequestTimeout, "cancelled", nil
	default:
		return http.StatusInternalServerError, "internal_error", nil
	}
}
