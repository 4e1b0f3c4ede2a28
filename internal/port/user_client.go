package port

import "context"

// UserVerifier checks user existence before issuance touches the ledger.
// Returns domain.ErrUserNotFound for an unknown user and
// domain.ErrUserVerification when the check itself fails.
type UserVerifier interface {
	EnsureUserExists(ctx context.Context, userID int64) error
}
