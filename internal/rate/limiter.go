package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the throttle. A zero Config disables it.
type Config struct {
	Enabled bool
	Max     int
	Window  time.Duration
	// Timeout bounds each Redis call. Zero means 2s.
	Timeout time.Duration
}

const defaultTimeout = 2 * time.Second

// Limiter counts refresh attempts per subject in fixed windows.
type Limiter struct {
	client redis.UniversalClient
	cfg    Config
}

// incrWindow bumps the counter and starts the window on the first hit, in
// one round trip. Returns {count, pttl}.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// New returns a Limiter over client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Limiter{client: client, cfg: cfg}
}

func counterKey(subjectID string) string { return "rl:refresh:" + subjectID }

// LimitError is returned once the budget is spent. It matches ErrLimited.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", ErrLimited, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// CheckRefresh records one attempt for subjectID. It is a no-op when the
// throttle is off.
func (l *Limiter) CheckRefresh(ctx context.Context, subjectID string) error {
	if l == nil || !l.cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	res, err := incrWindow.Run(ctx, l.client, []string{counterKey(subjectID)}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("%w: unexpected script reply %v", ErrBackend, res)
	}

	if res[0] > int64(l.cfg.Max) {
		retry := time.Duration(res[1]) * time.Millisecond
		if retry < 0 {
			retry = l.cfg.Window
		}
		return &LimitError{RetryAfter: retry}
	}
	return nil
}

// Attempts reports how many attempts subjectID made in the open window.
func (l *Limiter) Attempts(ctx context.Context, subjectID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	n, err := l.client.Get(ctx, counterKey(subjectID)).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %w", ErrBackend, err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}
