package admission

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token's payload. TokenID is the claims-embedded
// identifier resolved against the token store by primary key on every
// admission check — the hot path never re-hashes the bearer token itself
// (spec.md §9, Open Question 1: the legacy bearer-hash variant is dropped).
type Claims struct {
	TokenID  string `json:"tid"`
	AgentID  string `json:"agentId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates access tokens signed with an HMAC secret.
type JWTVerifier struct {
	secretKey []byte
}

// NewJWTVerifier builds a verifier from a shared secret. Token issuance is
// owned by the REST control plane; the gateway only verifies.
func NewJWTVerifier(secretKey string) *JWTVerifier {
	return &JWTVerifier{secretKey: []byte(secretKey)}
}

// Verify parses and validates tokenString, mapping JWT-library failures
// onto the admission pipeline's external error codes.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, *Error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secretKey, nil
	})

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, New(CodeTokenExpired, "access token expired")
	}
	if err != nil || !token.Valid {
		return nil, New(CodeInvalidCredentials, "malformed or unsigned token")
	}
	if claims.TokenID == "" || claims.AgentID == "" {
		return nil, New(CodeInvalidCredentials, "token missing required claims")
	}
	return claims, nil
}

// ExtractToken pulls the bearer token from a WebSocket upgrade request's
// query parameter first (the common case for browser/agent WS clients),
// falling back to the Authorization header for REST-style callers.
func ExtractToken(r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	authHeader := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix), nil
	}
	return "", errors.New("no token in query parameter or Authorization header")
}
