package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zombor/ledger-sense/internal/auth"
)

type contextKey string

const userCtxKey contextKey = "user_id"

var errNoToken = errors.New("no token")

// tokenFromRequest prefers the jwt cookie and falls back to a Bearer header
func tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
		return parts[1], nil
	}
	return "", errNoToken
}

// userIDFromToken verifies an HMAC-signed token and returns its id claim
func userIDFromToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	switch id := claims["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", errors.New("id not found in token")
}

// requireUser resolves the caller from their token before calling next
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			jsonMessage(w, "Not logged in. Please login to get access.", http.StatusUnauthorized)
			return
		}
		userID, err := userIDFromToken(tokenString, s.secret)
		if err != nil {
			jsonMessage(w, "Invalid token. Please login again.", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func userFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userCtxKey).(string)
	return id
}
