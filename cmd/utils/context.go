package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

// AccountIDKey carries the authenticated account id (the JWT subject
// issued by the external identity provider) through the request context.
const AccountIDKey contextKey = "accountID"

func GetAccountIDFromContext(r *http.Request) (string, error) {
    accountID, ok := r.Context().Value(AccountIDKey).(string)
    if !ok || accountID == "" {
        return "", errors.New("account ID not found in context")
    }
    return accountID, nil
}

// AuthMiddleware validates the bearer token and stashes its subject in
// the context. The server never stores credentials itself; identity is
// established upstream and arrives here as a signed opaque id.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        authHeader := r.Header.Get("Authorization")
        if authHeader == "" {
            http.Error(w, "Authorization header required", http.StatusUnauthorized)
            return
        }

        tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

        claims := &jwt.RegisteredClaims{}
        token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
            return []byte(os.Getenv("SECRET_KEY")), nil
        })

        if err != nil || !token.Valid {
            http.Error(w, "Invalid token", http.StatusUnauthorized)
            return
        }

        if claims.Subject == "" {
            http.Error(w, "Invalid account ID in token", http.StatusUnauthorized)
            return
        }

        ctx := context.WithValue(r.Context(), AccountIDKey, claims.Subject)
        next.ServeHTTP(w, r.WithContext(ctx))
    }
}
