package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/notify"
	"github.com/SinaHo/phone-referral-auth/internal/phone"
	"github.com/SinaHo/phone-referral-auth/internal/repository"
)

const maxReferralCodeAttempts = 5

// provisioner creates new profiles for first-time phone numbers.
type provisioner struct {
	repo     repository.ProfileRepository
	notifier notify.Notifier
	admins   map[string]bool
	logger   *zap.SugaredLogger
}

func newProvisioner(repo repository.ProfileRepository, notifier notify.Notifier, adminPhones []string, logger *zap.SugaredLogger) *provisioner {
	admins := make(map[string]bool, len(adminPhones))
	for _, raw := range adminPhones {
		n, err := phone.Normalize(raw)
		if err != nil {
			logger.Warnw("ignoring invalid admin phone", "phone", raw)
			continue
		}
		admins[n] = true
	}
	return &provisioner{repo: repo, notifier: notifier, admins: admins, logger: logger}
}

// create inserts a profile for phoneNumber with a fresh password and referral code.
// A non-empty code is stored as the initial verification code.
// repository.ErrPhoneTaken is returned unchanged when the number already exists.
func (p *provisioner) create(ctx context.Context, phoneNumber, code string, now time.Time) (*model.Profile, error) {
	password, err := generatePassword()
	if err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	for attempt := 0; attempt < maxReferralCodeAttempts; attempt++ {
		ref, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		profile := &model.Profile{
			PhoneNumber:  phoneNumber,
			PasswordHash: string(hashed),
			ReferralCode: ref,
			IsAdmin:      p.admins[phoneNumber],
			CreatedAt:    now,
		}
		if code != "" {
			issued := now
			profile.VerificationCode = code
			profile.CodeIssuedAt = &issued
		}

		err = p.repo.Create(ctx, profile)
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			p.logger.Infow("referral code collision, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := p.notifier.SendPassword(ctx, phoneNumber, password); err != nil {
			p.logger.Errorw("failed to deliver password", "phone", phoneNumber, "error", err)
		}
		p.logger.Infow("profile created", "profile_id", profile.ID, "admin", profile.IsAdmin)
		return profile, nil
	}
	return nil, fmt.Errorf("no unique referral code after %d attempts", maxReferralCodeAttempts)
}
