package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SinaHo/phone-referral-auth/internal/model"
)

// ProfileRepository stores profiles. Getters return (nil, nil) when no row matches.
type ProfileRepository interface {
	Create(ctx context.Context, p *model.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GetByPhone(ctx context.Context, phone string) (*model.Profile, error)
	List(ctx context.Context, limit, offset int) ([]model.Profile, error)
	Count(ctx context.Context) (int, error)
	// ReferredPhones maps each referral code to the phones of profiles that activated it.
	ReferredPhones(ctx context.Context, codes []string) (map[string][]string, error)
	SetVerificationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error
	ClearExpiredCodes(ctx context.Context, issuedBefore time.Time) (int64, error)
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Ping(ctx context.Context) error
	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx ProfileTx) error) error
}

// ProfileTx is the subset of operations performed under a row lock.
type ProfileTx interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Profile, error)
	// ActivateReferral sets the activated code and referrer of id, only if none is set yet.
	ActivateReferral(ctx context.Context, id uuid.UUID, code string, referrerID uuid.UUID) error
	MarkReferralCodeUsed(ctx context.Context, id uuid.UUID) error
}

const selectProfile = `
	SELECT p.id, p.phone_number, p.password_hash, p.verification_code, p.code_issued_at,
		p.referral_code, p.activated_referral_code, p.referrer_id, p.referred_code_used,
		p.is_admin, p.created_at, p.updated_at, r.phone_number AS referrer_phone
	FROM profiles p
	LEFT JOIN profiles r ON r.id = p.referrer_id
`

const maxTxAttempts = 3

type profileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository backed by a sqlx.DB.
func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func getProfile(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*model.Profile, error) {
	var p model.Profile
	if err := sqlx.GetContext(ctx, q, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts p. ID and timestamps are filled in when zero.
func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO profiles (
			id, phone_number, password_hash, verification_code, code_issued_at,
			referral_code, is_admin, created_at, updated_at
		) VALUES (
			:id, :phone_number, :password_hash, :verification_code, :code_issued_at,
			:referral_code, :is_admin, :created_at, :updated_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if mapped := translateUnique(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("error inserting profile: %w", err)
	}
	return nil
}

func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p, err := getProfile(ctx, r.db, selectProfile+"WHERE p.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("error selecting profile by id: %w", err)
	}
	return p, nil
}

func (r *profileRepository) GetByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	p, err := getProfile(ctx, r.db, selectProfile+"WHERE p.phone_number = $1", phone)
	if err != nil {
		return nil, fmt.Errorf("error selecting profile by phone: %w", err)
	}
	return p, nil
}

func (r *profileRepository) List(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	var out []model.Profile
	query := selectProfile + "ORDER BY p.created_at, p.id LIMIT $1 OFFSET $2"
	if err := r.db.SelectContext(ctx, &out, query, limit, offset); err != nil {
		return nil, fmt.Errorf("error listing profiles: %w", err)
	}
	return out, nil
}

func (r *profileRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM profiles"); err != nil {
		return 0, fmt.Errorf("error counting profiles: %w", err)
	}
	return n, nil
}

func (r *profileRepository) ReferredPhones(ctx context.Context, codes []string) (map[string][]string, error) {
	out := make(map[string][]string, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var rows []struct {
		Code  string `db:"activated_referral_code"`
		Phone string `db:"phone_number"`
	}
	query := `
		SELECT activated_referral_code, phone_number
		FROM profiles
		WHERE activated_referral_code = ANY($1)
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("error selecting referred profiles: %w", err)
	}
	for _, row := range rows {
		out[row.Code] = append(out[row.Code], row.Phone)
	}
	return out, nil
}

func (r *profileRepository) SetVerificationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	query := `
		UPDATE profiles
		SET verification_code = $2, code_issued_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, code, issuedAt); err != nil {
		return fmt.Errorf("error updating verification code: %w", err)
	}
	return nil
}

func (r *profileRepository) ClearExpiredCodes(ctx context.Context, issuedBefore time.Time) (int64, error) {
	query := `
		UPDATE profiles
		SET verification_code = '', code_issued_at = NULL, updated_at = NOW()
		WHERE verification_code <> '' AND code_issued_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, issuedBefore)
	if err != nil {
		return 0, fmt.Errorf("error clearing expired codes: %w", err)
	}
	return res.RowsAffected()
}

func (r *profileRepository) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	query := `UPDATE profiles SET phone_number = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, phone); err != nil {
		if mapped := translateUnique(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("error updating phone number: %w", err)
	}
	return nil
}

func (r *profileRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("error deleting profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *profileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx retries the whole transaction on serialization failures and deadlocks.
func (r *profileRepository) WithTx(ctx context.Context, fn func(tx ProfileTx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !isRetryable(err) {
			return err
		}
	}
	return err
}

func (r *profileRepository) runTx(ctx context.Context, fn func(tx ProfileTx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&profileTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type profileTx struct {
	tx *sqlx.Tx
}

func (t *profileTx) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p, err := getProfile(ctx, t.tx, selectProfile+"WHERE p.id = $1 FOR UPDATE OF p", id)
	if err != nil {
		return nil, fmt.Errorf("error locking profile: %w", err)
	}
	return p, nil
}

func (t *profileTx) GetByReferralCode(ctx context.Context, code string) (*model.Profile, error) {
	p, err := getProfile(ctx, t.tx, selectProfile+"WHERE p.referral_code = $1", code)
	if err != nil {
		return nil, fmt.Errorf("error selecting profile by referral code: %w", err)
	}
	return p, nil
}

func (t *profileTx) ActivateReferral(ctx context.Context, id uuid.UUID, code string, referrerID uuid.UUID) error {
	query := `
		UPDATE profiles
		SET activated_referral_code = $2, referrer_id = $3, updated_at = NOW()
		WHERE id = $1 AND activated_referral_code IS NULL
	`
	res, err := t.tx.ExecContext(ctx, query, id, code, referrerID)
	if err != nil {
		return fmt.Errorf("error activating referral code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyActivated
	}
	return nil
}

func (t *profileTx) MarkReferralCodeUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE profiles SET referred_code_used = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("error marking referral code used: %w", err)
	}
	return nil
}
