package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sequentech/message-otp/internal/domain"
)

// ErrTokenExpired is returned (wrapped) for a validly signed ticket past
// its expiry.
var ErrTokenExpired = jwt.ErrTokenExpired

// TicketValidator verifies flow tickets minted by TicketMinter.
type TicketValidator struct {
	keyStore KeyStore
	issuer   string
	audience string
	clock    domain.Clock
}

// NewTicketValidator creates a validator. TTL in cfg is ignored.
func NewTicketValidator(cfg TicketConfig) *TicketValidator {
	return &TicketValidator{
		keyStore: cfg.KeyStore,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// Validate parses and fully validates a ticket. Every failure wraps
// domain.ErrUnauthorized.
func (v *TicketValidator) Validate(tokenString string) (*TicketClaims, error) {
	var claims TicketClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid flow ticket: %w: %w", domain.ErrUnauthorized, err)
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("missing sub claim: %w", domain.ErrUnauthorized)
	case claims.SessionID == "":
		return nil, fmt.Errorf("missing sid claim: %w", domain.ErrUnauthorized)
	case claims.Flow == "":
		return nil, fmt.Errorf("missing flow claim: %w", domain.ErrUnauthorized)
	}
	return &claims, nil
}

func (v *TicketValidator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("missing or invalid kid in token header")
	}
	return v.keyStore.PublicKey(kid)
}
