package flows

import (
	"context"
	"time"

	"github.com/ohgun/credgate/jwt"
	"github.com/ohgun/credgate/tokenstore"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login     LoginDeps
	Refresh   RefreshDeps
	Logout    LogoutDeps
	RevokeAll RevokeAllDeps
	Verify    VerifyDeps
}

// Codec is the subset of the credential codec used by the flows.
type Codec interface {
	IssueAccess(subjectID string, attrs jwt.Attributes) (string, error)
	IssueRefresh(subjectID string, attrs jwt.Attributes) (string, error)
	Verify(token string) (*jwt.Claims, error)
	Remaining(claims *jwt.Claims) time.Duration
	RefreshTTL() time.Duration
}

// CredentialStore is the subset of tokenstore.Store used by the flows.
type CredentialStore interface {
	PutRefresh(ctx context.Context, token, ownerID string, ttl time.Duration) error
	GetOwner(ctx context.Context, token string) (string, error)
	DeleteRefresh(ctx context.Context, token string) error
	DeleteAllForOwner(ctx context.Context, ownerID string) (int, error)
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	Rotate(ctx context.Context, req tokenstore.RotateRequest) error
}
