package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

var (
	ErrPhoneTaken        = errors.New("phone number already registered")
	ErrReferralCodeTaken = errors.New("referral code already taken")
	// ErrAlreadyActivated is returned when the guarded activation update matched no row.
	ErrAlreadyActivated = errors.New("referral code already activated")
)

// Postgres error codes this package reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Connect opens a sqlx pool on lib/pq.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db, nil
}

// EnsureSchema creates the profiles table and its indexes when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// translateUnique maps unique violations on known constraints to sentinel errors.
func translateUnique(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "profiles_phone_number_key":
		return ErrPhoneTaken
	case "profiles_referral_code_key":
		return ErrReferralCodeTaken
	}
	return err
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
