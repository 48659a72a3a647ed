package session

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware resolves the session of a request.
type Middleware struct {
	manager *Manager
	logger  *zap.Logger
}

func NewMiddleware(manager *Manager, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{manager: manager, logger: logger}
}

// RequireSession rejects requests without a valid session token. GET
// requests may carry the token as ?token= for websocket clients and
// download links.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		s, err := m.manager.Authenticate(token)
		if err != nil {
			m.logger.Debug("session: rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if r.Method == http.MethodGet {
		if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
			return t, true
		}
	}
	return "", false
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
