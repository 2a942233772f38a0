package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/postgres"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

// Commander is the pgx surface the Postgres directory uses. *pgxpool.Pool
// and pgx.Tx satisfy it.
type Commander interface {
	Exec(ctx context.Context, sql string, arguments ...any) (postgres.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) postgres.Row
}

const (
	sqlCountByEmail = `SELECT count(*) FROM accounts WHERE email = $1`

	sqlCountByAttribute = `SELECT count(DISTINCT account_id) FROM account_attributes WHERE name = $1 AND value = $2`

	sqlGetEmail = `SELECT coalesce(email, '') FROM accounts WHERE id = $1`

	sqlGetAttribute = `SELECT value FROM account_attributes WHERE account_id = $1 AND name = $2`

	sqlUpsertAttribute = `INSERT INTO account_attributes (account_id, name, value)
VALUES ($1, $2, $3)
ON CONFLICT (account_id, name) DO UPDATE SET value = EXCLUDED.value`

	sqlUpdateEmail = `UPDATE accounts SET email = $2 WHERE id = $1`

	sqlSetEmail = `UPDATE accounts SET email = $2, email_verified = $3 WHERE id = $1`

	sqlRemoveRequiredAction = `DELETE FROM account_required_actions WHERE account_id = $1 AND action = $2`

	sqlGetPasswordHash = `SELECT coalesce(password_hash, '') FROM accounts WHERE id = $1`
)

var (
	_ app.AccountDirectory = (*PostgresAccountDirectory)(nil)
	_ app.PasswordVerifier = (*PostgresAccountDirectory)(nil)
)

// PostgresAccountDirectory reads accounts from a relational schema: the
// accounts table plus account_attributes and account_required_actions.
type PostgresAccountDirectory struct {
	db     Commander
	hasher *auth.PasswordHasher
}

// NewPostgresAccountDirectory creates a directory over db.
func NewPostgresAccountDirectory(db Commander, hasher *auth.PasswordHasher) *PostgresAccountDirectory {
	return &PostgresAccountDirectory{db: db, hasher: hasher}
}

func (d *PostgresAccountDirectory) CountByEmail(ctx context.Context, email string) (int, error) {
	var n int
	if err := d.db.QueryRow(ctx, sqlCountByEmail, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("account directory: count by email: %w", errors.Join(err, domain.ErrUnavailable))
	}
	return n, nil
}

func (d *PostgresAccountDirectory) CountByAttribute(ctx context.Context, name, value string) (int, error) {
	if name == domain.EmailAttribute {
		return d.CountByEmail(ctx, value)
	}

	var n int
	if err := d.db.QueryRow(ctx, sqlCountByAttribute, name, value).Scan(&n); err != nil {
		return 0, fmt.Errorf("account directory: count by attribute %q: %w", name, errors.Join(err, domain.ErrUnavailable))
	}
	return n, nil
}

// GetAttribute returns "" for an unset attribute; the email of a missing
// account is domain.ErrNotFound.
func (d *PostgresAccountDirectory) GetAttribute(ctx context.Context, accountID, name string) (string, error) {
	var value string
	if name == domain.EmailAttribute {
		err := d.db.QueryRow(ctx, sqlGetEmail, accountID).Scan(&value)
		switch {
		case postgres.IsNoRows(err):
			return "", fmt.Errorf("account directory: get email: %w", domain.ErrNotFound)
		case err != nil:
			return "", fmt.Errorf("account directory: get email: %w", errors.Join(err, domain.ErrUnavailable))
		}
		return value, nil
	}

	err := d.db.QueryRow(ctx, sqlGetAttribute, accountID, name).Scan(&value)
	switch {
	case postgres.IsNoRows(err):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("account directory: get attribute %q: %w", name, errors.Join(err, domain.ErrUnavailable))
	}
	return value, nil
}

func (d *PostgresAccountDirectory) SetAttribute(ctx context.Context, accountID, name, value string) error {
	if name == domain.EmailAttribute {
		return d.updateAccount(ctx, "set email attribute", sqlUpdateEmail, accountID, value)
	}

	if _, err := d.db.Exec(ctx, sqlUpsertAttribute, accountID, name, value); err != nil {
		return fmt.Errorf("account directory: set attribute %q: %w", name, errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

func (d *PostgresAccountDirectory) SetEmail(ctx context.Context, accountID, email string, verified bool) error {
	return d.updateAccount(ctx, "set email", sqlSetEmail, accountID, email, verified)
}

// RemoveRequiredAction succeeds when the action was already absent.
func (d *PostgresAccountDirectory) RemoveRequiredAction(ctx context.Context, accountID, action string) error {
	if _, err := d.db.Exec(ctx, sqlRemoveRequiredAction, accountID, action); err != nil {
		return fmt.Errorf("account directory: remove required action: %w", errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

func (d *PostgresAccountDirectory) VerifyPassword(ctx context.Context, accountID string, password domain.SecretString) (bool, error) {
	var hash string
	err := d.db.QueryRow(ctx, sqlGetPasswordHash, accountID).Scan(&hash)
	switch {
	case postgres.IsNoRows(err):
		return false, fmt.Errorf("account directory: verify password: %w", domain.ErrNotFound)
	case err != nil:
		return false, fmt.Errorf("account directory: verify password: %w", errors.Join(err, domain.ErrUnavailable))
	case hash == "":
		return false, nil
	}
	return d.hasher.Matches(hash, password)
}

func (d *PostgresAccountDirectory) updateAccount(ctx context.Context, op, sql string, args ...any) error {
	tag, err := d.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("account directory: %s: %w", op, errors.Join(err, domain.ErrUnavailable))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account directory: %s: %w", op, domain.ErrNotFound)
	}
	return nil
}
