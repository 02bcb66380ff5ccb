package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"callagent/internal/httputil"
	"callagent/internal/telephony/twiml"
)

// WebhookPrefix is the path prefix of every telephony webhook
const WebhookPrefix = "/api/twilio/"

// panicDocument is what a caller hears if a webhook handler panics
var panicDocument = twiml.NewResponse().
	Say("We apologize, but we are experiencing technical difficulties. Please try again later.", "", "").
	Hangup()

// Recovery middleware recovers from panics. Webhooks still get a valid
// response document; everything else gets a 500 problem response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)

					if strings.HasPrefix(r.URL.Path, WebhookPrefix) {
						body, _ := panicDocument.Render()
						httputil.RespondXML(w, http.StatusOK, twiml.ContentType, body)
						return
					}
					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
