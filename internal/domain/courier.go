package domain

import (
	"fmt"
	"strings"
)

// Courier selects the channel(s) a verification code is delivered through.
type Courier string

const (
	CourierEmail Courier = "EMAIL"
	CourierSMS   Courier = "SMS"
	CourierBoth  Courier = "BOTH"
	CourierNone  Courier = "NONE"
)

// ParseCourier parses a courier name case-insensitively.
func ParseCourier(raw string) (Courier, error) {
	switch c := Courier(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CourierEmail, CourierSMS, CourierBoth, CourierNone:
		return c, nil
	default:
		return "", fmt.Errorf("unknown courier %q: %w", raw, ErrInvalidInput)
	}
}

// UsesEmail reports whether codes are delivered by email.
func (c Courier) UsesEmail() bool { return c == CourierEmail || c == CourierBoth }

// UsesSMS reports whether codes are delivered by SMS.
func (c Courier) UsesSMS() bool { return c == CourierSMS || c == CourierBoth }

// Channels returns the single-channel couriers c expands to, email first.
func (c Courier) Channels() []Courier {
	var out []Courier
	if c.UsesEmail() {
		out = append(out, CourierEmail)
	}
	if c.UsesSMS() {
		out = append(out, CourierSMS)
	}
	return out
}

func (c Courier) String() string { return string(c) }
