package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"callagent/internal/httputil"
	"callagent/internal/telephony"
)

// maxWebhookBody bounds form payloads from the provider
const maxWebhookBody = 64 << 10

// SignatureConfig configures webhook verification
type SignatureConfig struct {
	AuthToken string
	// PublicBaseURL is the origin the provider was configured with. Behind a
	// proxy the request's own Host is not what was signed.
	PublicBaseURL string
	// Bypass skips verification. Config validation refuses it in prod.
	Bypass bool
}

// VerifyTwilioSignature rejects webhook requests whose signature does not
// match the exact URL and form body. The form is parsed here so handlers
// see the same values that were verified.
func VerifyTwilioSignature(cfg SignatureConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Bypass {
		logger.Warn("WEBHOOK SIGNATURE VERIFICATION DISABLED (never use in production!)")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
			if err := r.ParseForm(); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httputil.RespondError(w, http.StatusRequestEntityTooLarge, "form body too large")
					return
				}
				httputil.RespondError(w, http.StatusBadRequest, "invalid form body")
				return
			}

			if cfg.Bypass {
				next.ServeHTTP(w, r)
				return
			}

			signedURL := requestURL(r, cfg.PublicBaseURL)
			signature := r.Header.Get(telephony.SignatureHeader)
			if err := telephony.VerifySignature(cfg.AuthToken, signature, signedURL, r.PostForm); err != nil {
				logger.Warn("webhook signature rejected",
					"path", r.URL.Path,
					"url", signedURL,
					"missing", errors.Is(err, telephony.ErrMissingSignature),
				)
				httputil.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestURL reconstructs the URL the provider signed
func requestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
