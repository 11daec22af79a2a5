package login

import (
	"context"
	"time"

	"github.com/ohgun/credgate"
)

// Profile is the normalized identity returned by a provider code exchange.
type Profile struct {
	Provider          string
	ProviderSubjectID string
	Email             string
	DisplayName       string
	Nickname          string
	AvatarURL         string
}

// User is the local account a Profile resolves to.
type User struct {
	ID       string
	Email    string
	Name     string
	Nickname string
	Role     string
	Provider string
	Enabled  bool
}

// Attributes returns the credential attributes for u.
func (u User) Attributes() credgate.Attributes {
	return credgate.Attributes{
		Role:     u.Role,
		Email:    u.Email,
		Name:     u.Name,
		Provider: u.Provider,
	}
}

// Record is one row of login history.
type Record struct {
	UserID        string
	Provider      string
	Success       bool
	FailureReason string
	IP            string
	UserAgent     string
	At            time.Time
}

// ClientMeta describes the caller of a callback request.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Provider is one external identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// UserStore persists users and their login history.
type UserStore interface {
	FindOrCreateUser(ctx context.Context, profile Profile) (User, error)
	RecordLogin(ctx context.Context, record Record) error
}

// StateStore keeps authorization state values until their callback arrives.
// Consume must remove the value so it cannot be used twice, and must return
// ErrInvalidState when it is absent or expired.
type StateStore interface {
	Save(ctx context.Context, state, provider string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (provider string, err error)
}

// Issuer mints the initial credential pair. *credgate.Engine implements it.
type Issuer interface {
	Login(ctx context.Context, subjectID string, attrs credgate.Attributes) (credgate.Pair, error)
}
