package domain

import "time"

// CredentialTypeMessageOTP marks an account as having completed message OTP
// setup. No secret is stored with it since codes are single-use.
const CredentialTypeMessageOTP = "message-otp"

// CredentialRecord is the persisted "OTP is set up" fact for an account.
type CredentialRecord struct {
	ID        CredentialID
	AccountID string
	Type      string
	IsSetup   bool
	CreatedAt time.Time
}

// NewCredentialRecord creates a set-up message OTP credential for accountID.
func NewCredentialRecord(accountID string, now time.Time) CredentialRecord {
	return CredentialRecord{
		ID:        GenerateCredentialID(),
		AccountID: accountID,
		Type:      CredentialTypeMessageOTP,
		IsSetup:   true,
		CreatedAt: now.UTC(),
	}
}
