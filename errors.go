package credgate

import "errors"

var (
	// ErrInvalidCredential is returned for any credential that fails signature,
	// expiry or shape checks, or that is the wrong kind for the operation.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrReplayDetected is returned when a retired refresh credential is presented again.
	ErrReplayDetected = errors.New("refresh credential replay detected")
	// ErrUnknownCredential is returned when a refresh credential has no live record.
	ErrUnknownCredential = errors.New("unknown refresh credential")
	// ErrOwnerNotFound is returned when the credential owner no longer exists
	// or is disabled. Owner directories return it from LookupOwner.
	ErrOwnerNotFound = errors.New("credential owner not found")
	// ErrStoreUnavailable is returned when Redis or the owner directory cannot be reached.
	// It never means the record is absent.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrRefreshRateLimited is returned when the subject exceeded its refresh budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
