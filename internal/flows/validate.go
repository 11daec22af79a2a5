package flows

import (
	"errors"

	"github.com/ohgun/credgate/jwt"
)

// VerifyFailureKind classifies access verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureInvalid
	VerifyFailureWrongKind
)

// VerifyResult carries access claims or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.Claims
}

// VerifyDeps captures access verification dependencies.
type VerifyDeps struct {
	Codec Codec
}

// RunVerifyAccess verifies an access credential statelessly. Refresh
// credentials are rejected so they cannot stand in for bearer tokens.
func RunVerifyAccess(token string, deps VerifyDeps) VerifyResult {
	claims, err := deps.Codec.Verify(token)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureInvalid, Err: err}
	}
	if claims.Kind != jwt.KindAccess {
		return VerifyResult{Failure: VerifyFailureWrongKind, Err: errors.New("credential is not an access credential")}
	}
	return VerifyResult{Claims: claims}
}
