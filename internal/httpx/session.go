package httpx

import (
	"context"
	"net/http"
	"strings"
)

// HeaderUserID carries the caller identity resolved by the auth gateway in
// front of this service.
const HeaderUserID = "X-User-ID"

type Session struct {
	UserID string
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && s.UserID != ""
}

// SessionMiddleware lifts X-User-ID into a per-request Session.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid := strings.TrimSpace(r.Header.Get(HeaderUserID)); uid != "" {
			r = r.WithContext(WithSession(r.Context(), Session{UserID: uid}))
		}
		next.ServeHTTP(w, r)
	})
}
