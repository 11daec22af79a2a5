package credgate

import (
	"context"

	"github.com/ohgun/credgate/jwt"
)

// Attributes is the closed set of identity fields carried by credentials.
type Attributes = jwt.Attributes

// Claims is the verified payload of a credential.
type Claims = jwt.Claims

// Pair is an access credential together with its refresh credential.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// OwnerDirectory resolves the current attributes of a credential owner during
// refresh, so role or display changes since issuance are picked up.
//
// LookupOwner must return an error matching ErrOwnerNotFound when the owner
// no longer exists or is disabled. Any other error is treated as the
// directory being unavailable.
type OwnerDirectory interface {
	LookupOwner(ctx context.Context, subjectID string) (Attributes, error)
}

// OwnerDirectoryFunc adapts a function to OwnerDirectory.
type OwnerDirectoryFunc func(ctx context.Context, subjectID string) (Attributes, error)

func (f OwnerDirectoryFunc) LookupOwner(ctx context.Context, subjectID string) (Attributes, error) {
	return f(ctx, subjectID)
}
