package credgate

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ohgun/credgate/jwt"
	"github.com/redis/go-redis/v9"
)

type memoryOwners struct {
	mu    sync.Mutex
	attrs map[string]Attributes
	calls int
}

func newMemoryOwners() *memoryOwners {
	return &memoryOwners{attrs: map[string]Attributes{}}
}

func (o *memoryOwners) set(subjectID string, attrs Attributes) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attrs[subjectID] = attrs
}

func (o *memoryOwners) remove(subjectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attrs, subjectID)
}

func (o *memoryOwners) LookupOwner(_ context.Context, subjectID string) (Attributes, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	attrs, ok := o.attrs[subjectID]
	if !ok {
		return Attributes{}, ErrOwnerNotFound
	}
	return attrs, nil
}

func testConfig(t testing.TB) Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "credgate-test"
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestEngine(t testing.TB, cfg Config, configure ...func(*Builder)) (*Engine, *miniredis.Miniredis, *memoryOwners) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	owners := newMemoryOwners()
	owners.set("42", Attributes{Role: "ROLE_USER", Email: "kim@example.com", Name: "Kim", Provider: "naver"})

	b := New().WithConfig(cfg).WithRedis(rdb).WithOwnerDirectory(owners)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr, owners
}

func mustLogin(t testing.TB, engine *Engine, subjectID string) Pair {
	t.Helper()

	pair, err := engine.Login(context.Background(), subjectID, Attributes{Email: "kim@example.com", Provider: "naver"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return pair
}

func TestLoginRefreshReplayScenario(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	p1 := mustLogin(t, engine, "42")

	p2, err := engine.Refresh(ctx, p1.RefreshToken)
	if err != nil {
		t.Fatalf("refresh r1 failed: %v", err)
	}
	if p2.RefreshToken == p1.RefreshToken {
		t.Fatal("expected rotated refresh credential to differ")
	}
	if p2.AccessToken == p1.AccessToken {
		t.Fatal("expected new access credential")
	}

	if _, err := engine.Refresh(ctx, p1.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected on second use of r1, got %v", err)
	}

	if _, err := engine.Refresh(ctx, p2.RefreshToken); err != nil {
		t.Fatalf("refresh r2 failed: %v", err)
	}
}

func TestRotationChainOnlyLatestAccepted(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	const n = 5
	tokens := []string{mustLogin(t, engine, "42").RefreshToken}
	for i := 0; i < n; i++ {
		pair, err := engine.Refresh(ctx, tokens[len(tokens)-1])
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
		tokens = append(tokens, pair.RefreshToken)
	}

	seen := map[string]bool{}
	for _, tok := range tokens {
		if seen[tok] {
			t.Fatal("rotation chain produced a duplicate refresh credential")
		}
		seen[tok] = true
	}
	if len(seen) != n+1 {
		t.Fatalf("expected %d distinct credentials, got %d", n+1, len(seen))
	}

	for i, tok := range tokens[:n] {
		if _, err := engine.Refresh(ctx, tok); !errors.Is(err, ErrReplayDetected) {
			t.Fatalf("token %d: expected ErrReplayDetected, got %v", i, err)
		}
	}
	if _, err := engine.Refresh(ctx, tokens[n]); err != nil {
		t.Fatalf("latest credential rejected: %v", err)
	}
}

func TestLogoutThenRefreshFailsAccessStillVerifies(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	pair := mustLogin(t, engine, "42")
	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if mr.Exists("refresh_token:" + pair.RefreshToken) {
		t.Fatal("expected refresh record deleted")
	}
	if !mr.Exists("blacklist:" + pair.RefreshToken) {
		t.Fatal("expected blacklist entry after logout")
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected after logout, got %v", err)
	}

	claims, err := engine.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("access credential should remain valid after logout: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestLogoutInvalidCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	if err := engine.Logout(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestRevokeAllThenRefreshUnknown(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	p1 := mustLogin(t, engine, "42")
	p2 := mustLogin(t, engine, "42")

	n, err := engine.RevokeAll(ctx, "42")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked credentials, got %d", n)
	}
	if mr.Exists("user_tokens:42") {
		t.Fatal("expected owner set removed")
	}

	for _, tok := range []string{p1.RefreshToken, p2.RefreshToken} {
		if _, err := engine.Refresh(ctx, tok); !errors.Is(err, ErrUnknownCredential) {
			t.Fatalf("expected ErrUnknownCredential, got %v", err)
		}
	}
}

func TestRefreshStoreUnavailableLeavesCredentialUsable(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	pair := mustLogin(t, engine, "42")

	mr.SetError("connection reset")
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	mr.SetError("")

	if mr.Exists("blacklist:" + pair.RefreshToken) {
		t.Fatal("store failure must not leave a blacklist entry behind")
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("credential should remain usable after recovery: %v", err)
	}
}

func TestRefreshRejectsAccessCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	if _, err := engine.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestRefreshTamperedCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	tampered := []byte(pair.RefreshToken)
	i := len(tampered) / 2
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}

	_, err := engine.Refresh(context.Background(), string(tampered))
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if errors.Is(err, jwt.ErrBadSignature) {
		t.Fatal("refresh must not expose the codec failure class")
	}
}

func TestRefreshOwnerNotFound(t *testing.T) {
	engine, mr, owners := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	owners.remove("42")

	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if !mr.Exists("refresh_token:" + pair.RefreshToken) {
		t.Fatal("owner lookup failure must not retire the credential")
	}
}

func TestRefreshOwnerDirectoryFailure(t *testing.T) {
	boom := errors.New("directory offline")
	engine, _, _ := newTestEngine(t, testConfig(t), func(b *Builder) {
		b.WithOwnerDirectory(OwnerDirectoryFunc(func(context.Context, string) (Attributes, error) {
			return Attributes{}, boom
		}))
	})

	pair := mustLogin(t, engine, "42")
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRefreshPicksUpOwnerChanges(t *testing.T) {
	engine, _, owners := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	owners.set("42", Attributes{Role: "ROLE_ADMIN", Email: "kim@example.org", Name: "Kim"})

	next, err := engine.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	claims, err := engine.VerifyAccess(next.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Role != "ROLE_ADMIN" || claims.Email != "kim@example.org" {
		t.Fatalf("expected refreshed attributes, got %+v", claims.Attributes)
	}
	if claims.Provider != "naver" {
		t.Fatalf("expected provider carried over from the old credential, got %q", claims.Provider)
	}
}

func TestLoginAppliesDefaultRole(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	claims, err := engine.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Role != "ROLE_USER" {
		t.Fatalf("expected default role, got %q", claims.Role)
	}
	if owner, _ := mr.Get("refresh_token:" + pair.RefreshToken); owner != "42" {
		t.Fatalf("expected refresh record owned by 42, got %q", owner)
	}
}

func TestLoginEmptySubject(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	if _, err := engine.Login(context.Background(), "", Attributes{}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginStoreUnavailable(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))

	mr.SetError("down")
	defer mr.SetError("")
	if _, err := engine.Login(context.Background(), "42", Attributes{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestVerifyAccessMalformed(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	for _, tok := range []string{"", "not-a-token"} {
		_, err := engine.VerifyAccess(tok)
		if !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("%q: expected ErrInvalidCredential, got %v", tok, err)
		}
		if !errors.Is(err, jwt.ErrMalformed) {
			t.Fatalf("%q: expected jwt.ErrMalformed in chain, got %v", tok, err)
		}
	}
}

func TestVerifyAccessRejectsRefreshCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	pair := mustLogin(t, engine, "42")
	if _, err := engine.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 2
	cfg.Security.RefreshWindow = time.Minute
	engine, mr, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	tok := mustLogin(t, engine, "42").RefreshToken
	for i := 0; i < 2; i++ {
		pair, err := engine.Refresh(ctx, tok)
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
		tok = pair.RefreshToken
	}

	if _, err := engine.Refresh(ctx, tok); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("expected ErrRefreshRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, err := engine.Refresh(ctx, tok); err != nil {
		t.Fatalf("refresh after window failed: %v", err)
	}
}

func TestReplaysDoNotSpendRefreshBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 3
	cfg.Security.RefreshWindow = time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	retired := mustLogin(t, engine, "42").RefreshToken
	pair, err := engine.Refresh(ctx, retired)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	for i := 0; i < cfg.Security.MaxRefreshAttempts+2; i++ {
		if _, err := engine.Refresh(ctx, retired); !errors.Is(err, ErrReplayDetected) {
			t.Fatalf("replay %d: expected ErrReplayDetected, got %v", i, err)
		}
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("live credential refused after replays: %v", err)
	}
}

func TestRetiredCredentialVariantsAreInvalid(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	retired := mustLogin(t, engine, "42").RefreshToken
	if _, err := engine.Refresh(ctx, retired); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := retired[len(retired)-1]
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == last {
			continue
		}
		variant := retired[:len(retired)-1] + string(alphabet[i])
		if _, err := engine.Refresh(ctx, variant); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("variant ending %q: expected ErrInvalidCredential, got %v", alphabet[i], err)
		}
	}
}

func TestEngineMetricsCounters(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t), func(b *Builder) {
		b.WithMetricsEnabled(true).WithLatencyHistograms(true)
	})
	ctx := context.Background()

	pair := mustLogin(t, engine, "42")
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_, _ = engine.Refresh(ctx, pair.RefreshToken)

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected 1 refresh success, got %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricReplayDetected] != 1 {
		t.Fatalf("expected 1 replay, got %d", snap.Counters[MetricReplayDetected])
	}

	var observed uint64
	for _, v := range snap.Histograms[MetricRefreshLatency] {
		observed += v
	}
	if observed != 2 {
		t.Fatalf("expected 2 refresh latency observations, got %d", observed)
	}
}

func TestEnginePing(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))

	if err := engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	mr.SetError("down")
	defer mr.SetError("")
	if err := engine.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var engine *Engine

	if _, err := engine.Refresh(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "42", Attributes{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.VerifyAccess("x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops on nil engine")
	}
}

func TestBuildRequirements(t *testing.T) {
	_, rdb := newTestRedis(t)
	owners := newMemoryOwners()

	if _, err := New().WithConfig(testConfig(t)).WithOwnerDirectory(owners).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}
	if _, err := New().WithConfig(testConfig(t)).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without owner directory")
	}
	if _, err := New().WithRedis(rdb).WithOwnerDirectory(owners).Build(); err == nil {
		t.Fatal("expected error without signing keys")
	}

	cluster := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{"127.0.0.1:1"}})
	defer cluster.Close()
	if _, err := New().WithConfig(testConfig(t)).WithRedis(cluster).WithOwnerDirectory(owners).Build(); err == nil {
		t.Fatal("expected error for a cluster client")
	}

	b := New().WithConfig(testConfig(t)).WithRedis(rdb).WithOwnerDirectory(owners)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}
