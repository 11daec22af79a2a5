package flows

import (
	"context"
	"errors"

	"github.com/ohgun/credgate/jwt"
	"github.com/ohgun/credgate/tokenstore"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureWrongKind
	RefreshFailureRateLimited
	RefreshFailureReplay
	RefreshFailureUnknown
	RefreshFailureOwnerNotFound
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SubjectID    string
	TokenID      string
	AccessToken  string
	RefreshToken string
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, subjectID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Codec       Codec
	Store       CredentialStore
	RateLimiter RefreshRateLimiter
	// LookupOwner resolves the owner's current attributes. It must return an
	// error matching OwnerNotFound when the identity no longer exists.
	LookupOwner   func(ctx context.Context, ownerID string) (jwt.Attributes, error)
	OwnerNotFound error
	// RateLimitUnavailable classifies limiter backend failures as store failures.
	RateLimitUnavailable error
}

// RunRefresh exchanges a refresh credential for a new pair and retires the
// old one. The retire-and-activate step is a single atomic store call, so of
// any number of concurrent calls with the same token at most one succeeds.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Codec.Verify(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	if claims.Kind != jwt.KindRefresh {
		return RefreshResult{
			Failure:   RefreshFailureWrongKind,
			Err:       errors.New("credential is not a refresh credential"),
			SubjectID: claims.Subject,
			TokenID:   claims.ID,
		}
	}
	base := RefreshResult{SubjectID: claims.Subject, TokenID: claims.ID}

	blacklisted, err := deps.Store.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return base.fail(RefreshFailureStore, err)
	}
	if blacklisted {
		return base.fail(RefreshFailureReplay, tokenstore.ErrReplay)
	}

	ownerID, err := deps.Store.GetOwner(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return base.fail(RefreshFailureUnknown, err)
		}
		return base.fail(RefreshFailureStore, err)
	}
	if ownerID != claims.Subject {
		return base.fail(RefreshFailureUnknown, tokenstore.ErrOwnerMismatch)
	}

	// Only live records spend the throttle budget.
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.Subject); err != nil {
			if deps.RateLimitUnavailable != nil && errors.Is(err, deps.RateLimitUnavailable) {
				return base.fail(RefreshFailureStore, err)
			}
			return base.fail(RefreshFailureRateLimited, err)
		}
	}

	attrs, err := deps.LookupOwner(ctx, ownerID)
	if err != nil {
		if deps.OwnerNotFound != nil && errors.Is(err, deps.OwnerNotFound) {
			return base.fail(RefreshFailureOwnerNotFound, err)
		}
		return base.fail(RefreshFailureStore, err)
	}
	if attrs.Provider == "" {
		attrs.Provider = claims.Provider
	}

	access, refresh, err := issuePair(deps.Codec, ownerID, attrs)
	if err != nil {
		return base.fail(RefreshFailureIssue, err)
	}

	err = deps.Store.Rotate(ctx, tokenstore.RotateRequest{
		OldToken:  refreshToken,
		NewToken:  refresh,
		OwnerID:   ownerID,
		RetireTTL: deps.Codec.Remaining(claims),
		NewTTL:    deps.Codec.RefreshTTL(),
	})
	if err != nil {
		switch {
		case errors.Is(err, tokenstore.ErrReplay):
			return base.fail(RefreshFailureReplay, err)
		case errors.Is(err, tokenstore.ErrNotFound), errors.Is(err, tokenstore.ErrOwnerMismatch):
			return base.fail(RefreshFailureUnknown, err)
		default:
			return base.fail(RefreshFailureStore, err)
		}
	}

	base.AccessToken = access
	base.RefreshToken = refresh
	return base
}

func (r RefreshResult) fail(kind RefreshFailureKind, err error) RefreshResult {
	r.Failure = kind
	r.Err = err
	return r
}
