package tracing

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Result is what the wrapped dispatch returns: the assistant text plus token
// accounting for the generation record.
type Result struct {
	Output string
	Usage  Usage
}

// CallFunc performs the actual AI dispatch. It is called exactly once per
// wrapper invocation.
type CallFunc func(ctx context.Context) (*Result, error)

// Wrapper runs an AI dispatch inside an optional tracing observation.
//
// Failure isolation: a tracing failure before dispatch falls back to the
// untraced path; a tracing failure after dispatch is logged and swallowed.
// The dispatch result always wins.
type Wrapper struct {
	cache  *ClientCache
	logger *logrus.Logger
}

func NewWrapper(cache *ClientCache, logger *logrus.Logger) *Wrapper {
	return &Wrapper{cache: cache, logger: logger}
}

func (w *Wrapper) Call(ctx context.Context, obs Observation, fn CallFunc) (*Result, error) {
	client, err := w.cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrTracingDisabled) {
			w.logger.WithError(err).Warn("tracing unavailable, dispatching untraced")
		}
		return fn(ctx)
	}

	gen, err := client.StartGeneration(obs)
	if err != nil {
		// Pre-dispatch tracing failure: take the untraced path instead of
		// surfacing a tracing-internal error.
		w.logger.WithError(err).Warn("failed to start generation, dispatching untraced")
		return fn(ctx)
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if recErr := gen.End(result.Output, result.Usage); recErr != nil {
		w.logger.WithFields(logrus.Fields{
			"trace_name": obs.Name,
			"error":      recErr.Error(),
		}).Warn("failed to record generation")
	}
	return result, nil
}
