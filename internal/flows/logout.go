package flows

import (
	"context"
	"errors"

	"github.com/ohgun/credgate/jwt"
)

// LogoutFailureKind classifies logout outcomes. Logout is best effort, so
// callers usually only record these.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureInvalid
	LogoutFailureStore
)

// LogoutResult reports what a logout did.
type LogoutResult struct {
	Failure     LogoutFailureKind
	Err         error
	SubjectID   string
	Deleted     bool
	Blacklisted bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Codec Codec
	Store CredentialStore
	Warn  func(msg string, keyvals ...any)
}

// RunLogout deletes the refresh record and then blacklists the token for its
// remaining lifetime. The blacklist write happens even if the delete failed,
// so a token racing a concurrent rotation still cannot be replayed.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.Codec.Verify(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			// Expired tokens cannot refresh anyway; only drop leftover state.
			res := LogoutResult{Failure: LogoutFailureInvalid, Err: err}
			if delErr := deps.Store.DeleteRefresh(ctx, refreshToken); delErr != nil {
				warn(deps.Warn, "credgate: logout delete failed", "error", delErr)
			} else {
				res.Deleted = true
			}
			return res
		}
		return LogoutResult{Failure: LogoutFailureInvalid, Err: err}
	}
	if claims.Kind != jwt.KindRefresh {
		return LogoutResult{
			Failure:   LogoutFailureInvalid,
			Err:       errors.New("credential is not a refresh credential"),
			SubjectID: claims.Subject,
		}
	}

	res := LogoutResult{SubjectID: claims.Subject}
	if err := deps.Store.DeleteRefresh(ctx, refreshToken); err != nil {
		warn(deps.Warn, "credgate: logout delete failed", "subject", claims.Subject, "error", err)
	} else {
		res.Deleted = true
	}

	if err := deps.Store.Blacklist(ctx, refreshToken, deps.Codec.Remaining(claims)); err != nil {
		res.Failure = LogoutFailureStore
		res.Err = err
		return res
	}
	res.Blacklisted = true
	return res
}

// RevokeAllResult reports the outcome of a bulk revoke.
type RevokeAllResult struct {
	Err     error
	OwnerID string
	Revoked int
}

// RevokeAllDeps captures bulk revoke dependencies.
type RevokeAllDeps struct {
	Store CredentialStore
}

// RunRevokeAll deletes every outstanding refresh record for ownerID. Revoked
// tokens are not blacklisted; a later refresh fails as unknown.
func RunRevokeAll(ctx context.Context, ownerID string, deps RevokeAllDeps) RevokeAllResult {
	if ownerID == "" {
		return RevokeAllResult{Err: errors.New("empty owner")}
	}
	n, err := deps.Store.DeleteAllForOwner(ctx, ownerID)
	return RevokeAllResult{Err: err, OwnerID: ownerID, Revoked: n}
}

func warn(fn func(string, ...any), msg string, keyvals ...any) {
	if fn != nil {
		fn(msg, keyvals...)
	}
}
