package flows

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ohgun/credgate/jwt"
	"github.com/ohgun/credgate/tokenstore"
)

var (
	errOwnerGone = errors.New("owner gone")
	errBackend   = errors.New("backend down")
	errLimited   = errors.New("limited")
)

type memStore struct {
	mu        sync.Mutex
	owners    map[string]string
	blacklist map[string]bool
	fail      error
}

func newMemStore() *memStore {
	return &memStore{owners: map[string]string{}, blacklist: map[string]bool{}}
}

func (s *memStore) PutRefresh(_ context.Context, token, ownerID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.owners[token] = ownerID
	return nil
}

func (s *memStore) GetOwner(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	owner, ok := s.owners[token]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return owner, nil
}

func (s *memStore) DeleteRefresh(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.owners, token)
	return nil
}

func (s *memStore) DeleteAllForOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, owner := range s.owners {
		if owner == ownerID {
			delete(s.owners, tok)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Blacklist(_ context.Context, token string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.blacklist[token] = true
	return nil
}

func (s *memStore) IsBlacklisted(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	return s.blacklist[token], nil
}

func (s *memStore) Rotate(_ context.Context, req tokenstore.RotateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blacklist[req.OldToken] {
		return tokenstore.ErrReplay
	}
	owner, ok := s.owners[req.OldToken]
	if !ok {
		return tokenstore.ErrNotFound
	}
	if owner != req.OwnerID {
		return tokenstore.ErrOwnerMismatch
	}
	delete(s.owners, req.OldToken)
	s.blacklist[req.OldToken] = true
	s.owners[req.NewToken] = req.OwnerID
	return nil
}

type limiterFunc func(ctx context.Context, subjectID string) error

func (f limiterFunc) CheckRefresh(ctx context.Context, subjectID string) error { return f(ctx, subjectID) }

func newCodec(t *testing.T, now func() time.Time) *jwt.Manager {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Now:           now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func refreshDeps(codec Codec, store CredentialStore) RefreshDeps {
	return RefreshDeps{
		Codec: codec,
		Store: store,
		LookupOwner: func(_ context.Context, ownerID string) (jwt.Attributes, error) {
			switch ownerID {
			case "gone":
				return jwt.Attributes{}, errOwnerGone
			case "flaky":
				return jwt.Attributes{}, errBackend
			}
			return jwt.Attributes{Role: "ROLE_ADMIN"}, nil
		},
		OwnerNotFound:        errOwnerGone,
		RateLimitUnavailable: errBackend,
	}
}

func login(t *testing.T, codec Codec, store CredentialStore, subject string) LoginResult {
	t.Helper()
	res := RunLogin(context.Background(), subject, jwt.Attributes{Provider: "naver"}, LoginDeps{Codec: codec, Store: store})
	if res.Failure != LoginFailureNone {
		t.Fatalf("login: kind=%d err=%v", res.Failure, res.Err)
	}
	return res
}

func TestRunLogin(t *testing.T) {
	codec := newCodec(t, nil)
	store := newMemStore()

	if res := RunLogin(context.Background(), "", jwt.Attributes{}, LoginDeps{Codec: codec, Store: store}); res.Failure != LoginFailureInvalidSubject {
		t.Fatalf("empty subject: kind=%d", res.Failure)
	}

	res := login(t, codec, store, "42")
	if owner, _ := store.GetOwner(context.Background(), res.RefreshToken); owner != "42" {
		t.Fatalf("refresh record owner = %q", owner)
	}

	store.fail = errBackend
	res = RunLogin(context.Background(), "42", jwt.Attributes{}, LoginDeps{Codec: codec, Store: store})
	if res.Failure != LoginFailureStore || !errors.Is(res.Err, errBackend) {
		t.Fatalf("store failure: kind=%d err=%v", res.Failure, res.Err)
	}
}

func TestRunRefreshRotatesAndRefreshesAttributes(t *testing.T) {
	codec := newCodec(t, nil)
	store := newMemStore()
	old := login(t, codec, store, "42").RefreshToken

	res := RunRefresh(context.Background(), old, refreshDeps(codec, store))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh: kind=%d err=%v", res.Failure, res.Err)
	}

	claims, err := codec.Verify(res.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != "ROLE_ADMIN" || claims.Provider != "naver" {
		t.Fatalf("attributes not refreshed: %+v", claims.Attributes)
	}

	again := RunRefresh(context.Background(), old, refreshDeps(codec, store))
	if again.Failure != RefreshFailureReplay {
		t.Fatalf("replay: kind=%d", again.Failure)
	}
}

func TestRunRefreshClassification(t *testing.T) {
	codec := newCodec(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		setup func(store *memStore, deps *RefreshDeps) string
		want  RefreshFailureKind
	}{
		{
			name:  "garbage",
			setup: func(*memStore, *RefreshDeps) string { return "not-a-jwt" },
			want:  RefreshFailureInvalid,
		},
		{
			name: "access credential",
			setup: func(store *memStore, _ *RefreshDeps) string {
				return login(t, codec, store, "42").AccessToken
			},
			want: RefreshFailureWrongKind,
		},
		{
			name: "unknown to store",
			setup: func(*memStore, *RefreshDeps) string {
				tok, _ := codec.IssueRefresh("42", jwt.Attributes{})
				return tok
			},
			want: RefreshFailureUnknown,
		},
		{
			name: "owner mismatch",
			setup: func(store *memStore, _ *RefreshDeps) string {
				tok, _ := codec.IssueRefresh("42", jwt.Attributes{})
				store.owners[tok] = "7"
				return tok
			},
			want: RefreshFailureUnknown,
		},
		{
			name: "owner not found",
			setup: func(store *memStore, _ *RefreshDeps) string {
				return login(t, codec, store, "gone").RefreshToken
			},
			want: RefreshFailureOwnerNotFound,
		},
		{
			name: "directory unavailable",
			setup: func(store *memStore, _ *RefreshDeps) string {
				return login(t, codec, store, "flaky").RefreshToken
			},
			want: RefreshFailureStore,
		},
		{
			name: "rate limited",
			setup: func(store *memStore, deps *RefreshDeps) string {
				deps.RateLimiter = limiterFunc(func(context.Context, string) error { return errLimited })
				return login(t, codec, store, "42").RefreshToken
			},
			want: RefreshFailureRateLimited,
		},
		{
			name: "replay is not throttled",
			setup: func(store *memStore, deps *RefreshDeps) string {
				deps.RateLimiter = limiterFunc(func(context.Context, string) error { return errLimited })
				tok := login(t, codec, store, "42").RefreshToken
				store.blacklist[tok] = true
				delete(store.owners, tok)
				return tok
			},
			want: RefreshFailureReplay,
		},
		{
			name: "unknown is not throttled",
			setup: func(_ *memStore, deps *RefreshDeps) string {
				deps.RateLimiter = limiterFunc(func(context.Context, string) error { return errLimited })
				tok, _ := codec.IssueRefresh("42", jwt.Attributes{})
				return tok
			},
			want: RefreshFailureUnknown,
		},
		{
			name: "limiter backend down",
			setup: func(store *memStore, deps *RefreshDeps) string {
				deps.RateLimiter = limiterFunc(func(context.Context, string) error { return errBackend })
				return login(t, codec, store, "42").RefreshToken
			},
			want: RefreshFailureStore,
		},
		{
			name: "store down",
			setup: func(store *memStore, _ *RefreshDeps) string {
				tok := login(t, codec, store, "42").RefreshToken
				store.fail = errBackend
				return tok
			},
			want: RefreshFailureStore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			deps := refreshDeps(codec, store)
			token := tc.setup(store, &deps)

			res := RunRefresh(ctx, token, deps)
			if res.Failure != tc.want {
				t.Fatalf("kind = %d, want %d (err=%v)", res.Failure, tc.want, res.Err)
			}
			if res.AccessToken != "" || res.RefreshToken != "" {
				t.Fatal("failed refresh must not return credentials")
			}
		})
	}
}

func TestRunLogout(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	codec := newCodec(t, clock)
	store := newMemStore()
	ctx := context.Background()

	tok := login(t, codec, store, "42").RefreshToken
	res := RunLogout(ctx, tok, LogoutDeps{Codec: codec, Store: store})
	if res.Failure != LogoutFailureNone || !res.Deleted || !res.Blacklisted {
		t.Fatalf("logout: %+v", res)
	}
	if !store.blacklist[tok] {
		t.Fatal("token not blacklisted")
	}

	if res := RunLogout(ctx, "junk", LogoutDeps{Codec: codec, Store: store}); res.Failure != LogoutFailureInvalid || res.Deleted {
		t.Fatalf("malformed: %+v", res)
	}

	expired := login(t, codec, store, "42").RefreshToken
	now = now.Add(2 * time.Hour)
	res = RunLogout(ctx, expired, LogoutDeps{Codec: codec, Store: store})
	if !errors.Is(res.Err, jwt.ErrExpired) || !res.Deleted || res.Blacklisted {
		t.Fatalf("expired: %+v", res)
	}
	if _, ok := store.owners[expired]; ok {
		t.Fatal("expired record left behind")
	}
}

func TestRunLogoutBlacklistFailure(t *testing.T) {
	codec := newCodec(t, nil)
	store := newMemStore()
	tok := login(t, codec, store, "42").RefreshToken

	var warned []string
	store.fail = errBackend
	res := RunLogout(context.Background(), tok, LogoutDeps{
		Codec: codec,
		Store: store,
		Warn:  func(msg string, _ ...any) { warned = append(warned, msg) },
	})
	if res.Failure != LogoutFailureStore || res.Blacklisted || res.Deleted {
		t.Fatalf("result: %+v", res)
	}
	if len(warned) != 1 {
		t.Fatalf("expected delete failure warned once, got %v", warned)
	}
}

func TestRunRevokeAllAndVerify(t *testing.T) {
	codec := newCodec(t, nil)
	store := newMemStore()
	ctx := context.Background()

	first := login(t, codec, store, "42")
	login(t, codec, store, "42")
	login(t, codec, store, "7")

	if res := RunRevokeAll(ctx, "", RevokeAllDeps{Store: store}); res.Err == nil {
		t.Fatal("empty owner accepted")
	}
	if res := RunRevokeAll(ctx, "42", RevokeAllDeps{Store: store}); res.Err != nil || res.Revoked != 2 {
		t.Fatalf("revoke all: %+v", res)
	}

	if res := RunVerifyAccess(first.AccessToken, VerifyDeps{Codec: codec}); res.Failure != VerifyFailureNone || res.Claims.Subject != "42" {
		t.Fatalf("verify access: %+v", res)
	}
	if res := RunVerifyAccess(first.RefreshToken, VerifyDeps{Codec: codec}); res.Failure != VerifyFailureWrongKind {
		t.Fatalf("verify refresh as access: %+v", res)
	}

	if (Service{}).Ready() {
		t.Fatal("zero service must not be ready")
	}
}
