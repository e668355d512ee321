package api

import (
	"errors"
	"net/http"
	"strings"

	"wolf-backend/internal/auth"
	"wolf-backend/pkg/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// --- JWT Middleware ---

// JwtAuthMiddleware verifies the JWT token from the Authorization header and
// attaches the session to the request context. Browsers cannot set headers on
// websocket upgrades, so those may pass the token as ?access_token=.
func JwtAuthMiddleware(jwtSecret string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.Debugw("Auth middleware: missing or malformed credentials", "path", r.URL.Path)
				httputil.RespondError(w, http.StatusUnauthorized, "Authorization header required (Expected: Bearer <token>)")
				return
			}

			session, err := auth.ParseAccessToken(tokenString, jwtSecret)
			if err != nil {
				logger.Debugw("Auth middleware: rejected token", "error", err)
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					httputil.RespondError(w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					httputil.RespondError(w, http.StatusUnauthorized, "Malformed token")
				default:
					httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if websocket.IsWebSocketUpgrade(r) {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// --- Proxy CORS ---

const proxyAllowHeaders = "authorization, x-client-info, apikey, content-type"

// ProxyCORS answers every request on the gateway proxy with permissive CORS
// headers and short-circuits preflight requests before authentication.
func ProxyCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", proxyAllowHeaders)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
