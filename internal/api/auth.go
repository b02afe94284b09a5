// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfstream/shelfstream/internal/logging"
)

type contextKey string

const actorIDKey contextKey = "actor_id"

// ActorID returns the authenticated actor id from the request context.
func ActorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorIDKey).(string)
	return id, ok && id != ""
}

// Authenticator validates bearer tokens and injects the actor identity.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates a JWT authenticator with an HMAC secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects requests without a valid HS256 bearer token. The
// token's subject claim becomes the actor id for downstream handlers.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}

		actorID, err := a.parseSubject(tokenStr)
		if err != nil {
			logging.Debug().Err(err).Msg("Token rejected")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), actorIDKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseSubject validates the token signature and returns the subject.
func (a *Authenticator) parseSubject(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// IssueToken mints a signed token for an actor. Used by tests and the
// development tooling; production deployments verify tokens issued by
// the identity service sharing the same secret.
func (a *Authenticator) IssueToken(actorID string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = actorID

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
