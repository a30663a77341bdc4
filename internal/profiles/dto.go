package profiles

import (
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
)

// UpsertProfileInput carries the editable profile fields.
type UpsertProfileInput struct {
	FullName    string
	Phone       *string
	AvatarURL   *string
	City        *string
	DefaultRole enums.Role
}

// KYCInput carries the identity documents a runner submits.
type KYCInput struct {
	Aadhaar string
	PAN     string
}

// ProfileView is the owner's view of a profile.
type ProfileView struct {
	ID             uuid.UUID       `json:"id"`
	FullName       string          `json:"full_name"`
	Phone          *string         `json:"phone,omitempty"`
	AvatarURL      *string         `json:"avatar_url,omitempty"`
	City           *string         `json:"city,omitempty"`
	DefaultRole    enums.Role      `json:"default_role"`
	AadhaarLast4   *string         `json:"aadhaar_last4,omitempty"`
	PAN            *string         `json:"pan,omitempty"`
	KYCStatus      enums.KYCStatus `json:"kyc_status"`
	KYCSubmittedAt *time.Time      `json:"kyc_submitted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PublicProfile is what a counterpart sees.
type PublicProfile struct {
	ID        uuid.UUID       `json:"id"`
	FullName  string          `json:"full_name"`
	AvatarURL *string         `json:"avatar_url,omitempty"`
	City      *string         `json:"city,omitempty"`
	KYCStatus enums.KYCStatus `json:"kyc_status"`
}

// FromModel maps a profile row to the owner view.
func FromModel(p *models.Profile) *ProfileView {
	if p == nil {
		return nil
	}
	return &ProfileView{
		ID:             p.ID,
		FullName:       p.FullName,
		Phone:          p.Phone,
		AvatarURL:      p.AvatarURL,
		City:           p.City,
		DefaultRole:    p.DefaultRole,
		AadhaarLast4:   p.AadhaarLast4,
		PAN:            p.PAN,
		KYCStatus:      p.KYCStatus,
		KYCSubmittedAt: p.KYCSubmittedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// PublicFromModel strips contact and identity details.
func PublicFromModel(p *models.Profile) PublicProfile {
	return PublicProfile{
		ID:        p.ID,
		FullName:  p.FullName,
		AvatarURL: p.AvatarURL,
		City:      p.City,
		KYCStatus: p.KYCStatus,
	}
}
