package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/originpress/inkwell/pkg/apierr"
	"github.com/originpress/inkwell/pkg/logger"
)

// publicPaths never require a bearer token: health checks and the
// unsubscribe link readers click from delivered emails.
var publicPaths = map[string]struct{}{
	"/healthz":     {},
	"/unsubscribe": {},
}

func wrapWithAuth(next http.Handler, tokens []string, log *logger.Logger) http.Handler {
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			tokenSet[t] = struct{}{}
		}
	}
	if len(tokenSet) == 0 && log != nil {
		log.Warn("admin api tokens not configured; rejecting every authenticated route")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		token := extractToken(r)
		if token == "" {
			writeError(w, apierr.New(apierr.KindValidationFailed, "missing bearer token", http.StatusUnauthorized))
			return
		}
		matched := false
		for candidate := range tokenSet {
			if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
				matched = true
				break
			}
		}
		if !matched {
			writeError(w, apierr.New(apierr.KindValidationFailed, "invalid bearer token", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return ""
}
