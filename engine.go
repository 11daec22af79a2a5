package credgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate/internal/audit"
	"github.com/ohgun/credgate/internal/flows"
	"github.com/ohgun/credgate/internal/rate"
	"github.com/ohgun/credgate/jwt"
	"github.com/ohgun/credgate/tokenstore"
)

// Engine issues, rotates and revokes credentials.
//
// Engine instances are built once with [Builder] and are safe for concurrent
// use. All shared state lives in Redis; the only goroutine an Engine owns is
// the audit dispatcher, stopped by Close.
type Engine struct {
	config      Config
	store       *tokenstore.Store
	rateLimiter *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	jwtManager  *jwt.Manager
	owners      OwnerDirectory
	logger      *log.Logger
	flows       flows.Service
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Logger returns the engine logger. It is never nil on a built Engine.
func (e *Engine) Logger() *log.Logger {
	if e == nil || e.logger == nil {
		return discardLogger()
	}
	return e.logger
}

// AccessTTL and RefreshTTL expose the configured lifetimes, for cookie MaxAge.
func (e *Engine) AccessTTL() time.Duration  { return e.config.JWT.AccessTTL }
func (e *Engine) RefreshTTL() time.Duration { return e.config.JWT.RefreshTTL }

// Ping reports whether the credential store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Ready()
}

func (e *Engine) withDefaultRole(attrs Attributes) Attributes {
	if attrs.Role == "" {
		attrs.Role = e.config.DefaultRole
	}
	return attrs
}

func (e *Engine) lookupOwner(ctx context.Context, ownerID string) (jwt.Attributes, error) {
	attrs, err := e.owners.LookupOwner(ctx, ownerID)
	if err != nil {
		return jwt.Attributes{}, err
	}
	return e.withDefaultRole(attrs), nil
}

/*
====================================
LOGIN
====================================
*/

// Login mints a new credential pair for an already authenticated subject and
// activates the refresh credential in the store. An empty role is replaced by
// Config.DefaultRole.
func (e *Engine) Login(ctx context.Context, subjectID string, attrs Attributes) (Pair, error) {
	if !e.ready() {
		return Pair{}, ErrEngineNotReady
	}

	result := e.flows.Login(ctx, subjectID, e.withDefaultRole(attrs))
	var err error
	switch result.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, subjectID, "", nil, func() map[string]string {
			return map[string]string{"provider": attrs.Provider}
		})
		return Pair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
	case flows.LoginFailureInvalidSubject:
		err = fmt.Errorf("%w: empty subject", ErrInvalidCredential)
	case flows.LoginFailureStore:
		e.metricInc(MetricStoreUnavailable)
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, result.Err)
	default:
		err = fmt.Errorf("credgate: issue credentials: %w", result.Err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, subjectID, "", err, detail(result.Err))
	return Pair{}, err
}

/*
====================================
REFRESH
====================================
*/

// Refresh exchanges a refresh credential for a new pair. The presented
// credential is retired in the same atomic store call that activates its
// successor, so it can never be exchanged twice.
//
// Errors are ErrInvalidCredential, ErrReplayDetected, ErrUnknownCredential,
// ErrOwnerNotFound, ErrRefreshRateLimited or ErrStoreUnavailable. Codec detail
// is only reported to audit sinks.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	if !e.ready() {
		return Pair{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}()

	result := e.flows.Refresh(ctx, refreshToken)
	if result.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, result.SubjectID, result.TokenID, nil, nil)
		return Pair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
	}

	e.metricInc(MetricRefreshFailure)

	var (
		err       error
		eventType string
	)
	switch result.Failure {
	case flows.RefreshFailureInvalid, flows.RefreshFailureWrongKind:
		err, eventType = ErrInvalidCredential, auditEventRefreshInvalid
		e.logger.Debug("refresh credential rejected", "error", result.Err)
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		err, eventType = ErrRefreshRateLimited, auditEventRefreshRateLimited
	case flows.RefreshFailureReplay:
		e.metricInc(MetricReplayDetected)
		err, eventType = ErrReplayDetected, auditEventRefreshReplay
		e.logger.Warn("refresh credential replay detected", "subject", result.SubjectID, "jti", result.TokenID)
	case flows.RefreshFailureUnknown:
		e.metricInc(MetricRefreshUnknown)
		err, eventType = ErrUnknownCredential, auditEventRefreshUnknown
	case flows.RefreshFailureOwnerNotFound:
		e.metricInc(MetricOwnerNotFound)
		err, eventType = ErrOwnerNotFound, auditEventRefreshOwnerGone
	case flows.RefreshFailureStore:
		e.metricInc(MetricStoreUnavailable)
		err, eventType = ErrStoreUnavailable, auditEventRefreshFailure
		e.logger.Error("refresh store failure", "subject", result.SubjectID, "error", result.Err)
	default:
		err, eventType = fmt.Errorf("credgate: issue credentials: %w", result.Err), auditEventRefreshFailure
		e.logger.Error("refresh issue failure", "subject", result.SubjectID, "error", result.Err)
	}

	e.emitAudit(ctx, eventType, false, result.SubjectID, result.TokenID, err, detail(result.Err))
	return Pair{}, err
}

/*
====================================
LOGOUT / REVOKE
====================================
*/

// Logout deletes the refresh record and blacklists the credential for the
// rest of its lifetime. An expired credential only has its record removed.
//
// The returned error is informational; HTTP callers treat logout as always
// successful.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	result := e.flows.Logout(ctx, refreshToken)
	e.metricInc(MetricLogout)

	var err error
	switch result.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureStore:
		e.metricInc(MetricStoreUnavailable)
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, result.Err)
		e.logger.Warn("logout blacklist failed", "subject", result.SubjectID, "error", result.Err)
	default:
		if !errors.Is(result.Err, jwt.ErrExpired) {
			err = ErrInvalidCredential
		}
	}

	e.emitAudit(ctx, auditEventLogout, err == nil, result.SubjectID, "", err, func() map[string]string {
		return map[string]string{
			"deleted":     fmt.Sprint(result.Deleted),
			"blacklisted": fmt.Sprint(result.Blacklisted),
		}
	})
	return err
}

// RevokeAll deletes every live refresh credential of ownerID and returns how
// many were removed. Revoked credentials then fail refresh with
// ErrUnknownCredential.
func (e *Engine) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	result := e.flows.RevokeAll(ctx, ownerID)
	var err error
	if result.Err != nil {
		if errors.Is(result.Err, tokenstore.ErrStoreUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, result.Err)
		} else {
			err = fmt.Errorf("credgate: revoke all: %w", result.Err)
		}
	} else {
		e.metricInc(MetricRevokeAll)
	}

	e.emitAudit(ctx, auditEventRevokeAll, err == nil, ownerID, "", err, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(result.Revoked)}
	})
	return result.Revoked, err
}

/*
====================================
VERIFY
====================================
*/

// VerifyAccess checks an access credential without touching the store.
// Refresh credentials are rejected. The error wraps ErrInvalidCredential
// together with the codec failure class.
func (e *Engine) VerifyAccess(token string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	result := e.flows.VerifyAccess(token)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))

	if result.Failure != flows.VerifyFailureNone {
		e.metricInc(MetricVerifyFailure)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, result.Err)
	}
	e.metricInc(MetricVerifySuccess)
	return result.Claims, nil
}
