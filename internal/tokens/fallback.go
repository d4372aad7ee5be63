package tokens

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Fallback tries a primary tokenizer and degrades to a secondary one when
// the primary errors, e.g. when BPE data cannot be fetched in an offline
// environment. The switch is sticky so the failure is logged once, not per
// count.
type Fallback struct {
	primary   Tokenizer
	secondary Tokenizer
	logger    *zap.Logger

	degraded atomic.Bool
}

// NewFallback wires a primary counter with a secondary that takes over on
// the first primary failure.
func NewFallback(primary, secondary Tokenizer, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Count(ctx context.Context, text, model string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !f.degraded.Load() {
		n, err := f.primary.Count(ctx, text, model)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, err
		}
		if f.degraded.CompareAndSwap(false, true) {
			f.logger.Warn("primary tokenizer failed, switching to estimates",
				zap.String("model", model),
				zap.Error(err))
		}
	}
	return f.secondary.Count(ctx, text, model)
}
