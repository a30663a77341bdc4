package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// AccessTokenPayload is what the caller supplies when minting a token. A
// blank JTI is generated.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	return nil
}

type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; the parser calls it.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("token missing user id")
	case !c.Role.IsValid():
		return fmt.Errorf("token carries invalid role %q", c.Role)
	case strings.TrimSpace(c.ID) == "":
		return errors.New("token missing jti")
	}
	return nil
}

// Actor is the caller and the role they act as for one request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a Actor) IsRequester() bool { return a.Role == enums.RoleRequester }

func (a Actor) IsRunner() bool { return a.Role == enums.RoleRunner }

func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}
