package ucperrors

import (
	"net/http"

	"github.com/ucp-project/ucp/internal/logging"
)

// HandlerWithError is an HTTP handler that can return an error, letting
// handlers return errors instead of manually writing error responses.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors into
// HTTP responses: 5xx errors are logged in full and the client gets a
// generic message, 4xx errors are returned to the client verbatim.
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := HTTPStatus(err)
		if code >= http.StatusInternalServerError {
			logging.Errorf("internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}
		http.Error(w, err.Error(), code)
	}
}
