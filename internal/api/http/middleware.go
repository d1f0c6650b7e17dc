package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/config"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/metrics"
	"storage-booking-backend/internal/repository"
	"storage-booking-backend/internal/security"

	"github.com/gorilla/mux"
)

const (
	headerOrgID    = "X-Org-Id"
	headerRoleName = "X-Role-Name"
)

// AuthMiddleware resolves the caller of every protected route into an
// authz.AuthContext: token subject, role assignments and active org/role.
type AuthMiddleware struct {
	tokenManager security.TokenManager
	roles        repository.RoleRepository
	log          *slog.Logger
}

func NewAuthMiddleware(tm security.TokenManager, roles repository.RoleRepository, log *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm, roles: roles, log: log}
}

func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.GetSecurityLevel(routeName(r)) == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "authorization token is not provided")
			return
		}

		claims, err := m.tokenManager.ValidateAccessToken(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		roles, err := m.roles.ListByUser(r.Context(), claims.UserID())
		if err != nil {
			writeError(w, m.log, r, err)
			return
		}

		caller := authz.AuthContext{
			UserID:      claims.UserID(),
			Roles:       roles,
			ActiveOrgID: strings.TrimSpace(r.Header.Get(headerOrgID)),
			ActiveRole:  domain.RoleName(strings.TrimSpace(r.Header.Get(headerRoleName))),
		}
		if !holdsActiveRole(caller) {
			writeMessage(w, http.StatusForbidden, "active role is not held in the selected organization")
			return
		}

		next.ServeHTTP(w, r.WithContext(authz.WithAuthContext(r.Context(), caller)))
	})
}

// extractToken accepts only the Bearer scheme, matched case-insensitively.
func extractToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// holdsActiveRole checks the X-Org-Id / X-Role-Name selection against the
// caller's assignments. No selection is always allowed.
func holdsActiveRole(caller authz.AuthContext) bool {
	if caller.ActiveRole == "" && caller.ActiveOrgID == "" {
		return true
	}
	for _, r := range caller.Roles {
		if caller.ActiveRole != "" && r.Role != caller.ActiveRole {
			continue
		}
		if caller.ActiveOrgID != "" && r.OrgID != caller.ActiveOrgID && !r.Role.IsGlobal() {
			continue
		}
		return true
	}
	return false
}

// MetricsMiddleware counts requests per route name and status code.
func MetricsMiddleware(rec *metrics.Recorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)
			rec.ObserveRequest(routeName(r), strconv.Itoa(sw.code))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return "unmatched"
}
