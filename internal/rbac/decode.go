package rbac

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrUnexpectedIdentity is returned when the identity payload has the wrong shape.
var ErrUnexpectedIdentity = errors.New("rbac: unexpected identity payload")

var identityValidator = validator.New()

// Identity is the decoded user-details payload of the identity endpoint.
type Identity struct {
	ID          string      `json:"name" validate:"max=320"`
	FullName    string      `json:"full_name" validate:"max=320"`
	Email       string      `json:"email" validate:"omitempty,email"`
	Role        string      `json:"role" validate:"max=140"`
	Roles       []string    `json:"roles" validate:"max=256,dive,max=140"`
	Permissions Permissions `json:"permissions"`
}

// DecodeIdentity parses and validates a user-details object. Only a JSON
// object is accepted; strings, arrays and nulls are rejected.
func DecodeIdentity(data []byte) (*Identity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrUnexpectedIdentity
	}
	var ident Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedIdentity, err)
	}
	if err := identityValidator.Struct(ident); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedIdentity, err)
	}
	return &ident, nil
}

// Profile builds a normalized Profile for email from the identity payload.
// A nil identity yields an authenticated profile without grants.
func (i *Identity) Profile(email string) *Profile {
	p := &Profile{Email: email, Permissions: Permissions{}}
	if i != nil {
		p.ID = i.ID
		p.DisplayName = i.FullName
		if p.Email == "" {
			p.Email = i.Email
		}
		p.Role = i.Role
		p.Roles = append([]string(nil), i.Roles...)
		for m, set := range i.Permissions {
			p.Permissions[m] = append(ActionSet(nil), set...)
		}
	}
	p.Normalize()
	return p
}
