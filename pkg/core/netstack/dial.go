package netstack

import (
    "context"
    "errors"
    "fmt"
    "math/rand/v2"
    "time"

    "go.uber.org/zap"

    "coapp/pkg/transport"
)

// RetryOptions bound DialWithRetry. Zero values take the defaults.
type RetryOptions struct {
    Attempts       int           // default 60
    Delay          time.Duration // pause between attempts, default 500ms
    Jitter         time.Duration // random extra pause, default 0
    AttemptTimeout time.Duration // per-attempt bound, default Delay
}

func (o RetryOptions) withDefaults() RetryOptions {
    if o.Attempts <= 0 { o.Attempts = 60 }
    if o.Delay <= 0 { o.Delay = 500 * time.Millisecond }
    if o.AttemptTimeout <= 0 { o.AttemptTimeout = o.Delay }
    return o
}

// ErrRetryBudget is wrapped by DialWithRetry once every attempt failed.
var ErrRetryBudget = errors.New("retry budget exhausted")

// DialWithRetry dials address until it succeeds, the attempt budget runs out
// or ctx ends. The error of the last attempt is wrapped in the result.
func DialWithRetry(ctx context.Context, d transport.Dialer, address string, opts RetryOptions) (transport.Conn, error) {
    opts = opts.withDefaults()
    var last error
    for attempt := 1; attempt <= opts.Attempts; attempt++ {
        if err := ctx.Err(); err != nil { return nil, err }
        actx, cancel := context.WithTimeout(ctx, opts.AttemptTimeout)
        c, err := d.Dial(actx, address)
        cancel()
        if err == nil {
            if attempt > 1 { zap.L().Info("dialed", zap.String("kind", d.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt)) }
            return c, nil
        }
        last = err
        zap.L().Debug("dial failed", zap.String("kind", d.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt), zap.Error(err))
        if attempt == opts.Attempts { break }
        t := time.NewTimer(withJitter(opts.Delay, opts.Jitter))
        select {
        case <-ctx.Done():
            t.Stop()
            return nil, ctx.Err()
        case <-t.C:
        }
    }
    zap.L().Warn("dial failed", zap.String("kind", d.Kind().String()), zap.String("addr", address), zap.Int("attempts", opts.Attempts), zap.Error(last))
    return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudget, opts.Attempts, last)
}

func withJitter(d, jitter time.Duration) time.Duration {
    if jitter <= 0 { return d }
    return d + rand.N(jitter)
}
