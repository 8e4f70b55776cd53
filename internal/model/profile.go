package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a phone-number account together with its referral state.
type Profile struct {
	ID                    uuid.UUID  `db:"id"`
	PhoneNumber           string     `db:"phone_number"`
	PasswordHash          string     `db:"password_hash"`
	VerificationCode      string     `db:"verification_code"`
	CodeIssuedAt          *time.Time `db:"code_issued_at"`
	ReferralCode          string     `db:"referral_code"`
	ActivatedReferralCode *string    `db:"activated_referral_code"`
	ReferrerID            *uuid.UUID `db:"referrer_id"`
	ReferredCodeUsed      bool       `db:"referred_code_used"`
	IsAdmin               bool       `db:"is_admin"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`

	// ReferrerPhone is filled from a join and is not a column of profiles.
	ReferrerPhone *string `db:"referrer_phone"`
}

// HasActivated reports whether the profile already redeemed some referral code.
func (p *Profile) HasActivated() bool {
	return p.ActivatedReferralCode != nil && *p.ActivatedReferralCode != ""
}

// ProfileView is the public representation of a profile.
type ProfileView struct {
	ID                    uuid.UUID `json:"id"`
	PhoneNumber           string    `json:"phone_number"`
	ReferralCode          string    `json:"user_referral_code"`
	ReferredCodeUsed      bool      `json:"user_referred_code_used"`
	ReferredUsers         []string  `json:"referred_users"`
	ActivatedReferralCode *string   `json:"activated_referral_code"`
	ReferredBy            *string   `json:"referred_by"`
}

// NewProfileView builds the view; referred holds the phones of profiles that activated p's code.
func NewProfileView(p *Profile, referred []string) ProfileView {
	v := ProfileView{
		ID:                    p.ID,
		PhoneNumber:           p.PhoneNumber,
		ReferralCode:          p.ReferralCode,
		ReferredCodeUsed:      p.ReferredCodeUsed,
		ActivatedReferralCode: p.ActivatedReferralCode,
		ReferredBy:            p.ReferrerPhone,
	}
	if len(referred) > 0 {
		v.ReferredUsers = referred
	}
	return v
}

// ProfilePage is one page of the profile listing.
type ProfilePage struct {
	Count    int           `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
	Results  []ProfileView `json:"results"`
}

// Principal identifies the caller of a request. A nil *Principal is an anonymous caller.
type Principal struct {
	ProfileID uuid.UUID
	Phone     string
	IsAdmin   bool
}
