// Command credgate-loadtest drives concurrent verify, refresh and replay
// traffic through a credgate Engine backed by Redis or an in-process
// miniredis.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type options struct {
	subjects    int
	concurrency int
	ops         int
	redisAddr   string
}

// subjectState holds the live pair of one subject plus the last refresh
// credential it retired, which the replay phase presents again.
type subjectState struct {
	mu      sync.Mutex
	id      string
	pair    credgate.Pair
	retired string
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "credgate-loadtest",
		Short:         "Load test credential verify, refresh and replay detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.subjects, "subjects", 10000, "number of subjects to sign in")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 128, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; miniredis when empty")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.subjects <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("subjects, concurrency and ops must be > 0")
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "loadtest"})

	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Info("using miniredis", "addr", addr)
	} else {
		logger.Info("using redis", "addr", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, err := buildEngine(client)
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]*subjectState, opts.subjects)
	seedStart := time.Now()
	for i := range states {
		id := strconv.Itoa(i + 1)
		pair, err := engine.Login(ctx, id, credgate.Attributes{Role: "ROLE_USER", Provider: "loadtest"})
		if err != nil {
			return fmt.Errorf("seed login %s: %w", id, err)
		}
		states[i] = &subjectState{id: id, pair: pair}
	}
	logger.Info("seeded", "subjects", opts.subjects, "took", time.Since(seedStart).Round(time.Millisecond))

	verify := runPhase(opts, states, func(s *subjectState) error {
		s.mu.Lock()
		token := s.pair.AccessToken
		s.mu.Unlock()
		_, err := engine.VerifyAccess(token)
		return err
	})

	refresh := runPhase(opts, states, func(s *subjectState) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		next, err := engine.Refresh(ctx, s.pair.RefreshToken)
		if err != nil {
			return err
		}
		s.retired = s.pair.RefreshToken
		s.pair = next
		return nil
	})

	var detected atomic.Int64
	replay := runPhase(opts, states, func(s *subjectState) error {
		s.mu.Lock()
		old := s.retired
		s.mu.Unlock()
		if old == "" {
			return nil
		}
		_, err := engine.Refresh(ctx, old)
		if errors.Is(err, credgate.ErrReplayDetected) {
			detected.Add(1)
			return nil
		}
		if err == nil {
			return errors.New("retired credential accepted")
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verify)
	printStats("refresh", refresh)
	printStats("replay", replay)
	fmt.Printf("replays detected: %d\n", detected.Load())

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: refresh_success=%d replay_detected=%d store_unavailable=%d\n",
		snap.Counters[credgate.MetricRefreshSuccess],
		snap.Counters[credgate.MetricReplayDetected],
		snap.Counters[credgate.MetricStoreUnavailable])
	return nil
}

func buildEngine(client redis.UniversalClient) (*credgate.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	cfg := credgate.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "credgate-loadtest"

	owners := credgate.OwnerDirectoryFunc(func(context.Context, string) (credgate.Attributes, error) {
		return credgate.Attributes{Role: "ROLE_USER"}, nil
	})
	return credgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithOwnerDirectory(owners).
		WithMetricsEnabled(true).
		Build()
}

func runPhase(opts options, states []*subjectState, op func(*subjectState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.ops)
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, opts.ops/opts.concurrency+1)
			for cursor.Add(1) <= int64(opts.ops) {
				s := states[r.Intn(len(states))]
				t0 := time.Now()
				if err := op(s); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}
