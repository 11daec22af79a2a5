package flows

import (
	"context"

	"github.com/ohgun/credgate/jwt"
)

// LoginFailureKind classifies login issuance failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidSubject
	LoginFailureIssue
	LoginFailureStore
)

// LoginResult carries the minted pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	SubjectID    string
	AccessToken  string
	RefreshToken string
}

// LoginDeps captures login issuance dependencies.
type LoginDeps struct {
	Codec Codec
	Store CredentialStore
}

// RunLogin issues a fresh access/refresh pair for an already authenticated
// subject and activates the refresh credential.
func RunLogin(ctx context.Context, subjectID string, attrs jwt.Attributes, deps LoginDeps) LoginResult {
	if subjectID == "" {
		return LoginResult{Failure: LoginFailureInvalidSubject}
	}

	access, refresh, err := issuePair(deps.Codec, subjectID, attrs)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, SubjectID: subjectID}
	}

	if err := deps.Store.PutRefresh(ctx, refresh, subjectID, deps.Codec.RefreshTTL()); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, SubjectID: subjectID}
	}

	return LoginResult{
		SubjectID:    subjectID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func issuePair(codec Codec, subjectID string, attrs jwt.Attributes) (string, string, error) {
	access, err := codec.IssueAccess(subjectID, attrs)
	if err != nil {
		return "", "", err
	}
	refresh, err := codec.IssueRefresh(subjectID, attrs)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
