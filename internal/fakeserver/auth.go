package fakeserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type userIDKey struct{}

const tokenTTL = 24 * time.Hour

func (s *Server) issueToken(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"expires": now.Add(tokenTTL).Unix(),
		"exp":     now.Add(tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Server) parseToken(tokenStr string) (string, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", false
	}
	id, ok := claims["user_id"].(string)
	return id, ok && id != ""
}

// userFromRequest resolves the caller. A bearer token wins; otherwise the
// "user" header or query parameter carries the id directly.
func (s *Server) userFromRequest(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return s.parseToken(strings.TrimPrefix(auth, "Bearer "))
	}
	if id := r.Header.Get("user"); id != "" {
		return id, true
	}
	if id := r.URL.Query().Get("user"); id != "" {
		return id, true
	}
	return "", false
}

// authenticate rejects requests whose caller is not a registered dev.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.userFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, known := s.store.Get(id); !known {
			writeError(w, http.StatusUnauthorized, "unknown_user")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}
