package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sequentech/message-otp/internal/domain"
)

// Ticket is a signed flow ticket.
type Ticket struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TicketMinter signs RS256 flow tickets.
type TicketMinter struct {
	keyStore KeyStore
	ttl      time.Duration
	issuer   string
	audience string
	clock    domain.Clock
}

// TicketConfig is shared by TicketMinter and TicketValidator.
type TicketConfig struct {
	KeyStore KeyStore
	TTL      time.Duration // minter only
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// NewTicketMinter creates a minter. A zero TTL selects FlowTicketLifetime.
func NewTicketMinter(cfg TicketConfig) *TicketMinter {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = domain.FlowTicketLifetime
	}
	return &TicketMinter{
		keyStore: cfg.KeyStore,
		ttl:      ttl,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// Mint signs a ticket for accountID in sessionID, scoped to flow.
func (m *TicketMinter) Mint(accountID string, sessionID domain.SessionID, flow string) (Ticket, error) {
	if accountID == "" || sessionID.IsZero() || flow == "" {
		return Ticket{}, fmt.Errorf("mint ticket: %w", domain.ErrInvalidInput)
	}

	privateKey, keyID, err := m.keyStore.SigningKey()
	if err != nil {
		return Ticket{}, fmt.Errorf("get signing key: %w", err)
	}

	now := m.clock.Now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID.String(),
		Flow:      flow,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return Ticket{}, fmt.Errorf("sign ticket: %w", err)
	}
	return Ticket{Token: signed, ID: claims.ID, ExpiresAt: expiresAt}, nil
}
