package auth

import "github.com/golang-jwt/jwt/v5"

// TicketClaims bind an HTTP caller to the account, authentication session
// and verification flow they started. Subject is the account ID.
type TicketClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Flow      string `json:"flow"`
}
