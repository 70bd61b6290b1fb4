package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/beecolony/abcopt/internal/logging"
	"github.com/beecolony/abcopt/internal/optimization"
)

// Response is the JSON body written for failed requests.
type Response struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// RecoveryMiddleware returns a middleware that recovers from panics.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Recovered from panic", map[string]interface{}{
					"error":  fmt.Sprint(rec),
					"stack":  string(debug.Stack()),
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
				})

				WriteError(w, r, Errorf("internal error").WithStatus(http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError answers the request with the JSON error body for err. Server
// errors are logged through the request logger with their stack.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		fields := map[string]interface{}{"status": status}
		var e *Error
		if As(err, &e) && len(e.Stack) > 0 {
			fields["stack"] = e.Stack
		}
		if oe, ok := optimization.IsOptimizationError(err); ok {
			fields["component"] = oe.Component
			fields["operation"] = oe.Op
		}
		logging.FromContext(r.Context()).WithError(err).Error("Request error", fields)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:     err.Error(),
		Status:    status,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
