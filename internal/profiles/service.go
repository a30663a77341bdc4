package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxNameLength = 100

var phonePattern = regexp.MustCompile(`^(\+91)?[6-9][0-9]{9}$`)

type profileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
	UpdateKYC(ctx context.Context, id uuid.UUID, aadhaarLast4, pan string, at time.Time) (bool, error)
}

// Service manages user profiles and KYC submissions.
type Service interface {
	GetProfile(ctx context.Context, actor auth.Actor) (*ProfileView, error)
	UpsertProfile(ctx context.Context, actor auth.Actor, input UpsertProfileInput) (*ProfileView, error)
	SubmitKYC(ctx context.Context, actor auth.Actor, input KYCInput) (*ProfileView, error)
	// Lookup returns the public profiles of ids keyed by id.
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]PublicProfile, error)
}

type service struct {
	repo profileStore
	now  func() time.Time
}

// NewService builds a profile service.
func NewService(repo profileStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) GetProfile(ctx context.Context, actor auth.Actor) (*ProfileView, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	profile, err := s.repo.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return FromModel(profile), nil
}

func (s *service) UpsertProfile(ctx context.Context, actor auth.Actor, input UpsertProfileInput) (*ProfileView, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name is required")
	}
	if len(name) > maxNameLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("full name must be at most %d characters", maxNameLength))
	}
	phone := trimmedPtr(input.Phone)
	if phone != nil {
		normalized := strings.NewReplacer(" ", "", "-", "").Replace(*phone)
		if !phonePattern.MatchString(normalized) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone must be a 10 digit Indian mobile number")
		}
		phone = &normalized
	}
	role := input.DefaultRole
	if role == "" {
		role = enums.RoleRequester
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role))
	}

	profile := &models.Profile{
		ID:          actor.UserID,
		FullName:    name,
		Phone:       phone,
		AvatarURL:   trimmedPtr(input.AvatarURL),
		City:        trimmedPtr(input.City),
		DefaultRole: role,
		KYCStatus:   enums.KYCStatusNone,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save profile")
	}
	return s.GetProfile(ctx, actor)
}

func (s *service) SubmitKYC(ctx context.Context, actor auth.Actor, input KYCInput) (*ProfileView, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !ValidAadhaar(input.Aadhaar) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "aadhaar must be 12 digits and cannot start with 0 or 1")
	}
	if !ValidPAN(input.PAN) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pan must look like ABCDE1234F")
	}
	aadhaar := NormalizeAadhaar(input.Aadhaar)
	pan := NormalizePAN(input.PAN)

	ok, err := s.repo.UpdateKYC(ctx, actor.UserID, aadhaar[len(aadhaar)-4:], pan, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save kyc")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "create a profile before submitting kyc")
	}
	return s.GetProfile(ctx, actor)
}

func (s *service) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]PublicProfile, error) {
	out := make(map[uuid.UUID]PublicProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profiles")
	}
	for i := range rows {
		out[rows[i].ID] = PublicFromModel(&rows[i])
	}
	return out, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
