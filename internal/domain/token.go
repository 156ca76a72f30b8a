package domain

import "time"

// Token binds a hashed access/refresh token pair to an agent. The hot-path
// admission check resolves the access token's embedded identifier against
// this row by primary key (see spec.md §9, Open Question 1) rather than
// hashing the bearer token on every request.
type Token struct {
	ID               string // matches the "tid" claim embedded in the JWT
	AgentID          string
	AccessTokenHash  string
	RefreshTokenHash string
	ExpiresAt        time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// Active reports whether the token may still be used on the hot path.
// A revoked or expired row is retained for audit but never authorizes
// a request.
func (t Token) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
