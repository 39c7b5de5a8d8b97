package scriptsmith

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// apiError mirrors pkg/api's errorResponse wire shape.
type apiError struct {
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Violations json.RawMessage `json:"violations,omitempty"`
}

// SecurityError is returned when the server rejects a request for a
// security_violation, carrying the policy violations the way
// sdk/exceptions.py's SecurityError carries its violations list.
type SecurityError struct {
	Message    string
	Violations []model.Violation
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security violation: %s", e.Message)
}

// codeToKind maps pkg/api's external error codes back onto the shared
// apperr taxonomy, since the two string sets diverge (the HTTP surface
// uses "generation_failed"/"execution_failed"/"cache_error"/"internal_error"
// where apperr uses "provider_failure"/"sandbox_failure"/"cache_failure"/
// "internal" — the external names are stable API contract, the internal
// ones are free to change independently).
var codeToKind = map[string]apperr.Kind{
	"invalid_request":         apperr.KindInvalidRequest,
	"security_violation":      apperr.KindSecurityViolation,
	"no_providers_available":  apperr.KindNoProvidersAvailable,
	"generation_failed":       apperr.KindProviderFailure,
	"execution_failed":        apperr.KindSandboxFailure,
	"not_found":               apperr.KindNotFound,
	"cache_error":             apperr.KindCacheFailure,
	"cancelled":               apperr.KindCancelled,
	"internal_error":          apperr.KindInternal,
}

// decodeAPIError turns a non-2xx HTTP response into a typed error: a
// *SecurityError for security_violation, otherwise an *apperr.Error whose
// Kind is recovered via codeToKind.
func decodeAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "read error response", err)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return apperr.New(apperr.KindInternal, fmt.Sprintf("server returned %d: %s", resp.StatusCode, string(body)))
	}

	if apiErr.Error == "security_violation" && len(apiErr.Violations) > 0 {
		var violations []model.Violation
		if err := json.Unmarshal(apiErr.Violations, &violations); err == nil {
			return &SecurityError{Message: apiErr.Message, Violations: violations}
		}
	}

	kind, ok := codeToKind[apiErr.Error]
	if !ok {
		kind = apperr.KindInternal
	}
	return apperr.New(kind, apiErr.Message)
}
