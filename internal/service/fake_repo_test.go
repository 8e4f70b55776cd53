package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/repository"
)

// fakeRepo is an in-memory ProfileRepository. WithTx restores the previous state when fn fails.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*model.Profile

	// control fields
	referralCollisions int   // Create fails with ErrReferralCodeTaken this many times
	markUsedError      error // returned by MarkReferralCodeUsed
	getByPhoneError    error
	// phoneRace makes the first Create for this phone fail as if another request won the insert.
	phoneRace string

	// captured
	createCalls int
	txCalls     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{profiles: map[uuid.UUID]*model.Profile{}}
}

func clone(p *model.Profile) *model.Profile {
	c := *p
	if p.ActivatedReferralCode != nil {
		v := *p.ActivatedReferralCode
		c.ActivatedReferralCode = &v
	}
	if p.ReferrerID != nil {
		v := *p.ReferrerID
		c.ReferrerID = &v
	}
	if p.CodeIssuedAt != nil {
		v := *p.CodeIssuedAt
		c.CodeIssuedAt = &v
	}
	return &c
}

// read returns a copy with the joined referrer phone filled in. Caller holds mu.
func (r *fakeRepo) read(p *model.Profile) *model.Profile {
	c := clone(p)
	c.ReferrerPhone = nil
	if p.ReferrerID != nil {
		if ref, ok := r.profiles[*p.ReferrerID]; ok {
			phone := ref.PhoneNumber
			c.ReferrerPhone = &phone
		}
	}
	return c
}

func (r *fakeRepo) sorted() []*model.Profile {
	out := make([]*model.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// add seeds a profile directly.
func (r *fakeRepo) add(phone, referralCode string) *model.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &model.Profile{
		ID:           uuid.New(),
		PhoneNumber:  phone,
		ReferralCode: referralCode,
		CreatedAt:    time.Now().Add(time.Duration(len(r.profiles)) * time.Second),
	}
	r.profiles[p.ID] = p
	return clone(p)
}

func (r *fakeRepo) get(id uuid.UUID) *model.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil
	}
	return r.read(p)
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles)
}

func (r *fakeRepo) Create(ctx context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.referralCollisions > 0 {
		r.referralCollisions--
		return repository.ErrReferralCodeTaken
	}
	if r.phoneRace != "" && r.phoneRace == p.PhoneNumber {
		r.phoneRace = ""
		winner := &model.Profile{ID: uuid.New(), PhoneNumber: p.PhoneNumber, ReferralCode: "WINNER", CreatedAt: time.Now()}
		r.profiles[winner.ID] = winner
		return repository.ErrPhoneTaken
	}
	for _, other := range r.profiles {
		if other.PhoneNumber == p.PhoneNumber {
			return repository.ErrPhoneTaken
		}
		if other.ReferralCode == p.ReferralCode {
			return repository.ErrReferralCodeTaken
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.profiles[p.ID] = clone(p)
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.get(id), nil
}

func (r *fakeRepo) GetByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getByPhoneError != nil {
		return nil, r.getByPhoneError
	}
	for _, p := range r.profiles {
		if p.PhoneNumber == phone {
			return r.read(p), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) List(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted()
	var out []model.Profile
	for i := offset; i < len(all) && i < offset+limit; i++ {
		out = append(out, *r.read(all[i]))
	}
	return out, nil
}

func (r *fakeRepo) Count(ctx context.Context) (int, error) {
	return r.count(), nil
}

func (r *fakeRepo) ReferredPhones(ctx context.Context, codes []string) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, c := range codes {
		want[c] = true
	}
	out := map[string][]string{}
	for _, p := range r.sorted() {
		if p.ActivatedReferralCode != nil && want[*p.ActivatedReferralCode] {
			out[*p.ActivatedReferralCode] = append(out[*p.ActivatedReferralCode], p.PhoneNumber)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetVerificationCode(ctx context.Context, id uuid.UUID, code string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.VerificationCode = code
		p.CodeIssuedAt = &issuedAt
	}
	return nil
}

func (r *fakeRepo) ClearExpiredCodes(ctx context.Context, issuedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.profiles {
		if p.VerificationCode != "" && p.CodeIssuedAt != nil && p.CodeIssuedAt.Before(issuedBefore) {
			p.VerificationCode = ""
			p.CodeIssuedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.PhoneNumber == phone && p.ID != id {
			return repository.ErrPhoneTaken
		}
	}
	if p, ok := r.profiles[id]; ok {
		p.PhoneNumber = phone
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return false, nil
	}
	delete(r.profiles, id)
	for _, p := range r.profiles {
		if p.ReferrerID != nil && *p.ReferrerID == id {
			p.ReferrerID = nil
		}
	}
	return true, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }

func (r *fakeRepo) WithTx(ctx context.Context, fn func(tx repository.ProfileTx) error) error {
	r.mu.Lock()
	r.txCalls++
	snapshot := make(map[uuid.UUID]*model.Profile, len(r.profiles))
	for id, p := range r.profiles {
		snapshot[id] = clone(p)
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.profiles = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.get(id), nil
}

func (r *fakeRepo) GetByReferralCode(ctx context.Context, code string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.ReferralCode == code {
			return r.read(p), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ActivateReferral(ctx context.Context, id uuid.UUID, code string, referrerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok || p.ActivatedReferralCode != nil {
		return repository.ErrAlreadyActivated
	}
	c := code
	ref := referrerID
	p.ActivatedReferralCode = &c
	p.ReferrerID = &ref
	return nil
}

func (r *fakeRepo) MarkReferralCodeUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markUsedError != nil {
		return r.markUsedError
	}
	if p, ok := r.profiles[id]; ok {
		p.ReferredCodeUsed = true
	}
	return nil
}
