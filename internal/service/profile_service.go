package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/metrics"
	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/notify"
	"github.com/SinaHo/phone-referral-auth/internal/phone"
	"github.com/SinaHo/phone-referral-auth/internal/repository"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 50

	ActivatedMessage = "you have successfully become a referral"
)

// ProfileService implements the profile resource and referral activation.
// A nil actor is an anonymous caller.
type ProfileService interface {
	List(ctx context.Context, page, pageSize int) (*ProfileList, error)
	Get(ctx context.Context, actor *model.Principal, id uuid.UUID) (*model.ProfileView, error)
	// Update changes the owner's own fields.
	Update(ctx context.Context, actor *model.Principal, id uuid.UUID, in UpdateProfileInput) (*model.ProfileView, error)
	// Patch is the administrator variant of Update.
	Patch(ctx context.Context, actor *model.Principal, id uuid.UUID, in UpdateProfileInput) (*model.ProfileView, error)
	ActivateReferral(ctx context.Context, actor *model.Principal, id uuid.UUID, code string) error
	Create(ctx context.Context, actor *model.Principal, phoneNumber string) (*model.ProfileView, error)
	Delete(ctx context.Context, actor *model.Principal, id uuid.UUID) error
}

type UpdateProfileInput struct {
	PhoneNumber *string
}

type ProfileList struct {
	Count    int
	Page     int
	PageSize int
	Results  []model.ProfileView
}

func (l *ProfileList) HasNext() bool     { return l.Page*l.PageSize < l.Count }
func (l *ProfileList) HasPrevious() bool { return l.Page > 1 }

type ProfileOptions struct {
	AdminPhones []string
	Notifier    notify.Notifier
	Logger      *zap.SugaredLogger
	Now         func() time.Time
}

type profileService struct {
	repo        repository.ProfileRepository
	provisioner *provisioner
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// NewProfileService constructs a new ProfileService.
func NewProfileService(repo repository.ProfileRepository, opts ProfileOptions) ProfileService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &profileService{
		repo:        repo,
		provisioner: newProvisioner(repo, opts.Notifier, opts.AdminPhones, opts.Logger),
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

func (s *profileService) views(ctx context.Context, profiles []model.Profile) ([]model.ProfileView, error) {
	codes := make([]string, 0, len(profiles))
	for _, p := range profiles {
		codes = append(codes, p.ReferralCode)
	}
	referred, err := s.repo.ReferredPhones(ctx, codes)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProfileView, 0, len(profiles))
	for i := range profiles {
		out = append(out, model.NewProfileView(&profiles[i], referred[profiles[i].ReferralCode]))
	}
	return out, nil
}

func (s *profileService) view(ctx context.Context, p *model.Profile) (*model.ProfileView, error) {
	vs, err := s.views(ctx, []model.Profile{*p})
	if err != nil {
		return nil, err
	}
	return &vs[0], nil
}

func (s *profileService) List(ctx context.Context, page, pageSize int) (*ProfileList, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	offset := (page - 1) * pageSize
	if page > 1 && offset >= count {
		return nil, ErrInvalidPage
	}

	profiles, err := s.repo.List(ctx, pageSize, offset)
	if err != nil {
		return nil, err
	}
	results, err := s.views(ctx, profiles)
	if err != nil {
		return nil, err
	}
	return &ProfileList{Count: count, Page: page, PageSize: pageSize, Results: results}, nil
}

// load fetches id and checks that actor owns it, or is an admin when adminMayAct is set.
func (s *profileService) load(ctx context.Context, actor *model.Principal, id uuid.UUID, adminMayAct bool) (*model.Profile, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if p.ID != actor.ProfileID && !(adminMayAct && actor.IsAdmin) {
		return nil, ErrPermissionDenied
	}
	return p, nil
}

func (s *profileService) Get(ctx context.Context, actor *model.Principal, id uuid.UUID) (*model.ProfileView, error) {
	p, err := s.load(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

func (s *profileService) Update(ctx context.Context, actor *model.Principal, id uuid.UUID, in UpdateProfileInput) (*model.ProfileView, error) {
	p, err := s.load(ctx, actor, id, false)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, p, in)
}

func (s *profileService) Patch(ctx context.Context, actor *model.Principal, id uuid.UUID, in UpdateProfileInput) (*model.ProfileView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, p, in)
}

func (s *profileService) apply(ctx context.Context, p *model.Profile, in UpdateProfileInput) (*model.ProfileView, error) {
	if in.PhoneNumber == nil {
		return nil, ErrNothingToUpdate
	}
	number, err := phone.Normalize(*in.PhoneNumber)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if number != p.PhoneNumber {
		if err := s.repo.UpdatePhone(ctx, p.ID, number); err != nil {
			if errors.Is(err, repository.ErrPhoneTaken) {
				return nil, ErrPhoneTaken
			}
			return nil, err
		}
	}

	updated, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrProfileNotFound
	}
	return s.view(ctx, updated)
}

// ActivateReferral links the profile id to the owner of code. The checks and both writes
// happen in one transaction with the acting row locked.
func (s *profileService) ActivateReferral(ctx context.Context, actor *model.Principal, id uuid.UUID, code string) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	var referrerID uuid.UUID
	err := s.repo.WithTx(ctx, func(tx repository.ProfileTx) error {
		p, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		if p.ID != actor.ProfileID {
			return ErrPermissionDenied
		}

		if code == p.ReferralCode {
			return ErrSelfReferral
		}
		if p.HasActivated() {
			if *p.ActivatedReferralCode == code {
				return ErrReferralAlreadyActivated
			}
			return ErrOtherReferralActivated
		}

		referrer, err := tx.GetByReferralCode(ctx, code)
		if err != nil {
			return err
		}
		if referrer == nil {
			return ErrReferralCodeNotFound
		}
		if referrer.ID == p.ID {
			return ErrSelfReferral
		}

		if err := tx.ActivateReferral(ctx, p.ID, code, referrer.ID); err != nil {
			if errors.Is(err, repository.ErrAlreadyActivated) {
				return ErrOtherReferralActivated
			}
			return err
		}
		if err := tx.MarkReferralCodeUsed(ctx, referrer.ID); err != nil {
			return err
		}
		referrerID = referrer.ID
		return nil
	})
	if err != nil {
		metrics.ReferralActivations.WithLabelValues(activationResult(err)).Inc()
		return err
	}

	metrics.ReferralActivations.WithLabelValues("activated").Inc()
	s.logger.Infow("referral code activated", "profile_id", id, "referrer_id", referrerID)
	return nil
}

func activationResult(err error) string {
	switch KindOf(err) {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied, KindUnauthenticated:
		return "denied"
	default:
		return "error"
	}
}

func (s *profileService) Create(ctx context.Context, actor *model.Principal, phoneNumber string) (*model.ProfileView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	number, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	p, err := s.provisioner.create(ctx, number, "", s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrPhoneTaken) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return s.view(ctx, p)
}

func (s *profileService) Delete(ctx context.Context, actor *model.Principal, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrProfileNotFound
	}
	s.logger.Infow("profile deleted", "profile_id", id, "by", actor.ProfileID)
	return nil
}

func requireAdmin(actor *model.Principal) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return ErrAdminOnly
	}
	return nil
}
