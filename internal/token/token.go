// Package token issues and validates the bearer tokens handed out after code verification.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SinaHo/phone-referral-auth/internal/model"
)

const issuer = "phone-referral-auth"

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by an access token. Subject holds the profile id.
type Claims struct {
	Phone string `json:"phone"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and parses HS256 access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret []byte, ttl time.Duration) *Manager {
	return &Manager{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed access token for the profile.
func (m *Manager) Issue(p *model.Profile) (string, error) {
	now := m.now()
	claims := Claims{
		Phone: p.PhoneNumber,
		Admin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates raw and returns the caller it identifies.
func (m *Manager) Parse(raw string) (*model.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return &model.Principal{ProfileID: id, Phone: claims.Phone, IsAdmin: claims.Admin}, nil
}
