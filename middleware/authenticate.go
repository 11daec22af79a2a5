package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate"
)

// Verifier checks an access credential. *credgate.Engine implements it.
type Verifier interface {
	VerifyAccess(token string) (*credgate.Claims, error)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	SubjectID string
	Claims    credgate.Attributes
	TokenID   string
	ExpiresAt time.Time
}

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity attached by Authenticate, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// Authenticate verifies the bearer credential of each request and attaches
// the resulting Identity. Requests without a usable credential continue
// unauthenticated; the rejection is logged at debug level.
func Authenticate(v Verifier, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || v == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.VerifyAccess(token)
			if err != nil {
				if logger != nil {
					logger.Debug("bearer credential rejected", "path", r.URL.Path, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			id := &Identity{
				SubjectID: claims.Subject,
				Claims:    claims.Attributes,
				TokenID:   claims.ID,
			}
			if claims.ExpiresAt != nil {
				id.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
