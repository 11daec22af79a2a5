package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ohgun/credgate"
)

// DefaultStateTTL bounds the time between LoginURL and the callback.
const DefaultStateTTL = 10 * time.Minute

// Config wires an Orchestrator.
type Config struct {
	Providers []Provider
	States    StateStore
	Users     UserStore
	Issuer    Issuer
	StateTTL  time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

// Result is a completed sign-in.
type Result struct {
	Pair     credgate.Pair
	User     User
	Provider string
}

// Orchestrator runs the sign-in flow for a fixed set of providers.
type Orchestrator struct {
	providers map[string]Provider
	states    StateStore
	users     UserStore
	issuer    Issuer
	stateTTL  time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewOrchestrator validates cfg and returns an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("login: at least one provider required")
	}
	if cfg.States == nil || cfg.Users == nil || cfg.Issuer == nil {
		return nil, errors.New("login: state store, user store and issuer are required")
	}

	o := &Orchestrator{
		providers: make(map[string]Provider, len(cfg.Providers)),
		states:    cfg.States,
		users:     cfg.Users,
		issuer:    cfg.Issuer,
		stateTTL:  cfg.StateTTL,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	for _, p := range cfg.Providers {
		name := p.Name()
		if name == "" {
			return nil, errors.New("login: provider with empty name")
		}
		if _, dup := o.providers[name]; dup {
			return nil, fmt.Errorf("login: duplicate provider %q", name)
		}
		o.providers[name] = p
	}
	if o.stateTTL <= 0 {
		o.stateTTL = DefaultStateTTL
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Providers lists the configured provider names in sorted order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for name := range o.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoginURL returns the provider authorization URL and the state value bound to it.
func (o *Orchestrator) LoginURL(ctx context.Context, provider string) (string, string, error) {
	p, ok := o.providers[provider]
	if !ok {
		return "", "", ErrUnknownProvider
	}

	state := uuid.NewString()
	if err := o.states.Save(ctx, state, provider, o.stateTTL); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	return p.AuthCodeURL(state), state, nil
}

// Complete finishes a sign-in from the provider callback. The state is
// consumed before the code is exchanged, so a replayed callback fails with
// ErrInvalidState. Failures after the user is known are recorded in login
// history; earlier failures are not.
func (o *Orchestrator) Complete(ctx context.Context, provider, code, state string, meta ClientMeta) (Result, error) {
	p, ok := o.providers[provider]
	if !ok {
		return Result{}, ErrUnknownProvider
	}
	if state == "" {
		return Result{}, ErrInvalidState
	}

	bound, err := o.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return Result{}, ErrInvalidState
		}
		return Result{}, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	if bound != provider {
		return Result{}, ErrInvalidState
	}

	if code == "" {
		return Result{}, fmt.Errorf("%w: empty code", ErrExchangeFailed)
	}
	profile, err := p.Exchange(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if profile.ProviderSubjectID == "" {
		return Result{}, fmt.Errorf("%w: provider returned no subject", ErrExchangeFailed)
	}
	profile.Provider = provider

	user, err := o.users.FindOrCreateUser(ctx, profile)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUserResolution, err)
	}
	if user.Provider == "" {
		user.Provider = provider
	}

	if !user.Enabled {
		o.record(ctx, user, provider, false, "account disabled", meta)
		return Result{}, ErrUserDisabled
	}

	pair, err := o.issuer.Login(ctx, user.ID, user.Attributes())
	if err != nil {
		o.record(ctx, user, provider, false, "credential issuance failed", meta)
		return Result{}, fmt.Errorf("%w: %w", ErrCredentialIssuance, err)
	}

	o.record(ctx, user, provider, true, "", meta)
	o.logger.Info("login success", "user", user.ID, "provider", provider)

	return Result{Pair: pair, User: user, Provider: provider}, nil
}

// record writes login history. A failed write never fails the sign-in.
func (o *Orchestrator) record(ctx context.Context, user User, provider string, success bool, reason string, meta ClientMeta) {
	err := o.users.RecordLogin(ctx, Record{
		UserID:        user.ID,
		Provider:      provider,
		Success:       success,
		FailureReason: reason,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		At:            o.now().UTC(),
	})
	if err != nil {
		o.logger.Warn("login history write failed", "user", user.ID, "error", err)
	}
}
