package core

import (
	"context"
	"errors"
	"time"
)

// ErrOTPNotFound is returned when no live code exists for a key.
var ErrOTPNotFound = errors.New("verification code not found or expired")

// OTPStore is a short-lived keyed code cache. Keys are phone numbers; values
// expire after the TTL given at store time and are consumed on a successful
// check.
type OTPStore interface {
	Store(ctx context.Context, key, code string, ttl time.Duration) error
	// Check compares code against the live value for key. A match consumes
	// the entry. A missing or expired entry yields ErrOTPNotFound.
	Check(ctx context.Context, key, code string) (bool, error)
}
