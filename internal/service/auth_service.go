package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/metrics"
	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/notify"
	"github.com/SinaHo/phone-referral-auth/internal/phone"
	"github.com/SinaHo/phone-referral-auth/internal/ratelimit"
	"github.com/SinaHo/phone-referral-auth/internal/repository"
)

const (
	LoginMessage  = "enter the verification code from the SMS at POST /input_verification_code/"
	VerifyMessage = "logged in successfully"
)

// AuthService defines the phone login flow.
type AuthService interface {
	Login(ctx context.Context, phoneNumber string) (*LoginResult, error)
	VerifyCode(ctx context.Context, phoneNumber, enteredCode string) (*VerifyResult, error)
}

type LoginResult struct {
	Message string
	Created bool
}

type VerifyResult struct {
	AccessToken string
	Message     string
}

// TokenIssuer signs access tokens for verified profiles.
type TokenIssuer interface {
	Issue(p *model.Profile) (string, error)
}

type AuthOptions struct {
	// CodeTTL bounds the age of a verification code. Zero disables expiry.
	CodeTTL       time.Duration
	AdminPhones   []string
	LoginLimiter  ratelimit.Limiter
	VerifyLimiter ratelimit.Limiter
	Notifier      notify.Notifier
	Logger        *zap.SugaredLogger
	Now           func() time.Time
}

type authService struct {
	repo          repository.ProfileRepository
	tokens        TokenIssuer
	provisioner   *provisioner
	notifier      notify.Notifier
	loginLimiter  ratelimit.Limiter
	verifyLimiter ratelimit.Limiter
	codeTTL       time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time
}

// NewAuthService constructs a new AuthService. Nil options fall back to no-op implementations.
func NewAuthService(repo repository.ProfileRepository, tokens TokenIssuer, opts AuthOptions) AuthService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = ratelimit.Noop()
	}
	if opts.VerifyLimiter == nil {
		opts.VerifyLimiter = ratelimit.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &authService{
		repo:          repo,
		tokens:        tokens,
		provisioner:   newProvisioner(repo, opts.Notifier, opts.AdminPhones, opts.Logger),
		notifier:      opts.Notifier,
		loginLimiter:  opts.LoginLimiter,
		verifyLimiter: opts.VerifyLimiter,
		codeTTL:       opts.CodeTTL,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// allow consults a limiter and lets the request through when the limiter itself fails.
func (s *authService) allow(ctx context.Context, l ratelimit.Limiter, key string) error {
	ok, err := l.Allow(ctx, key)
	if err != nil {
		s.logger.Warnw("rate limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		return ErrTooManyAttempts
	}
	return nil
}

// Login creates the profile on first use and always issues a new verification code.
func (s *authService) Login(ctx context.Context, phoneNumber string) (*LoginResult, error) {
	number, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if err := s.allow(ctx, s.loginLimiter, number); err != nil {
		return nil, err
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	p, err := s.repo.GetByPhone(ctx, number)
	if err != nil {
		return nil, err
	}

	created := false
	if p == nil {
		p, err = s.provisioner.create(ctx, number, code, now)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, repository.ErrPhoneTaken):
			// created concurrently by another request
			if p, err = s.repo.GetByPhone(ctx, number); err != nil {
				return nil, err
			}
			if p == nil {
				return nil, ErrUserNotFound
			}
		default:
			return nil, err
		}
	}
	if !created {
		if err := s.repo.SetVerificationCode(ctx, p.ID, code, now); err != nil {
			return nil, err
		}
	}
	metrics.VerificationCodesIssued.Inc()

	if err := s.notifier.SendVerificationCode(ctx, number, code); err != nil {
		return nil, err
	}
	return &LoginResult{Message: LoginMessage, Created: created}, nil
}

// VerifyCode exchanges the latest verification code for an access token.
func (s *authService) VerifyCode(ctx context.Context, phoneNumber, enteredCode string) (*VerifyResult, error) {
	res, err := s.verify(ctx, phoneNumber, enteredCode)
	if err != nil {
		metrics.VerificationAttempts.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.VerificationAttempts.WithLabelValues("accepted").Inc()
	return res, nil
}

func (s *authService) verify(ctx context.Context, phoneNumber, enteredCode string) (*VerifyResult, error) {
	number, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if err := s.allow(ctx, s.verifyLimiter, number); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByPhone(ctx, number)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUserNotFound
	}

	entered := strings.TrimSpace(enteredCode)
	if entered == "" {
		return nil, ErrEmptyCode
	}
	if p.VerificationCode == "" || s.expired(p) {
		return nil, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(entered), []byte(p.VerificationCode)) != 1 {
		return nil, ErrWrongCode
	}

	if err := s.verifyLimiter.Reset(ctx, number); err != nil {
		s.logger.Warnw("failed to reset verify limiter", "error", err)
	}

	jwtStr, err := s.tokens.Issue(p)
	if err != nil {
		return nil, errors.New("failed to sign JWT")
	}
	s.logger.Infow("profile verified", "profile_id", p.ID)
	return &VerifyResult{AccessToken: jwtStr, Message: VerifyMessage}, nil
}

func (s *authService) expired(p *model.Profile) bool {
	if s.codeTTL <= 0 || p.CodeIssuedAt == nil {
		return false
	}
	return s.now().Sub(*p.CodeIssuedAt) > s.codeTTL
}
