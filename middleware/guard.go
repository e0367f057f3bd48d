// Package middleware adapts the engine to net/http: bearer-token extraction,
// identity injection, and role gating for the host's router.
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	authkit "github.com/wellport-health/authkit"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by RequireSession.
func IdentityFromContext(ctx context.Context) (*authkit.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authkit.Identity)
	return id, ok
}

// RequireSession authenticates the bearer token and attaches the resulting
// identity to the request context. Expired tokens get a WWW-Authenticate
// hint so clients know to refresh rather than re-login.
func RequireSession(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withRequestMetadata(r)
			identity, err := engine.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, authkit.ErrTokenExpired) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityContextKey{}, identity)))
		})
	}
}

// RequireRole gates a route on the caller's role claim. Must be mounted
// inside RequireSession.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withRequestMetadata attaches caller IP and device to the context for
// session activity tracking and audit events.
func withRequestMetadata(r *http.Request) context.Context {
	ctx := r.Context()

	ip := r.Header.Get("X-Forwarded-For")
	if idx := strings.IndexByte(ip, ','); idx >= 0 {
		ip = strings.TrimSpace(ip[:idx])
	}
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}

	ctx = authkit.WithClientIP(ctx, ip)
	if ua := r.UserAgent(); ua != "" {
		ctx = authkit.WithDevice(ctx, ua)
	}
	return ctx
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}
