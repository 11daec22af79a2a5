package credgate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// raceRefresh presents token from n goroutines released at the same instant.
func raceRefresh(engine *Engine, token string, n int) (winners []Pair, losers []error) {
	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		mu    sync.Mutex
	)
	start.Add(1)
	done.Add(n)
	for range n {
		go func() {
			defer done.Done()
			start.Wait()
			pair, err := engine.Refresh(context.Background(), token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)
				return
			}
			winners = append(winners, pair)
		}()
	}
	start.Done()
	done.Wait()
	return winners, losers
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig(t))
	token := mustLogin(t, engine, "42").RefreshToken

	winners, losers := raceRefresh(engine, token, 16)

	if len(winners) != 1 {
		t.Fatalf("want exactly one rotation, got %d", len(winners))
	}
	for _, err := range losers {
		if !errors.Is(err, ErrReplayDetected) && !errors.Is(err, ErrUnknownCredential) {
			t.Fatalf("loser failed with %v", err)
		}
	}

	members, err := mr.Members("user_tokens:42")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != winners[0].RefreshToken {
		t.Fatalf("owner set should hold only the successor, got %v", members)
	}

	// The successor keeps working after the race.
	if _, err := engine.Refresh(context.Background(), winners[0].RefreshToken); err != nil {
		t.Fatalf("successor refresh: %v", err)
	}
}

func TestConcurrentRefreshAndLogout(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(t))

	for round := 0; round < 10; round++ {
		token := mustLogin(t, engine, "42").RefreshToken

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = engine.Refresh(context.Background(), token)
		}()
		go func() {
			defer wg.Done()
			_ = engine.Logout(context.Background(), token)
		}()
		wg.Wait()

		// Whatever the interleaving, the logged out credential is dead.
		if _, err := engine.Refresh(context.Background(), token); err == nil {
			t.Fatalf("round %d: credential usable after logout", round)
		}
	}
}
