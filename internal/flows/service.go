package flows

import (
	"context"

	"github.com/ohgun/credgate/jwt"
)

// Service binds one Deps value to the flow functions so the Engine can call
// them without passing dependencies on every request.
type Service struct {
	deps Deps
}

func New(deps Deps) Service { return Service{deps: deps} }

// Ready reports whether the codec and store were wired. The zero Service is not ready.
func (s Service) Ready() bool {
	r := s.deps.Refresh
	return r.Codec != nil && r.Store != nil && r.LookupOwner != nil
}

func (s Service) Login(ctx context.Context, subjectID string, attrs jwt.Attributes) LoginResult {
	return RunLogin(ctx, subjectID, attrs, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, token string) RefreshResult {
	return RunRefresh(ctx, token, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, token string) LogoutResult {
	return RunLogout(ctx, token, s.deps.Logout)
}

func (s Service) RevokeAll(ctx context.Context, ownerID string) RevokeAllResult {
	return RunRevokeAll(ctx, ownerID, s.deps.RevokeAll)
}

func (s Service) VerifyAccess(token string) VerifyResult {
	return RunVerifyAccess(token, s.deps.Verify)
}
