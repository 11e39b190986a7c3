package service

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"simrpc/message"
	"simrpc/simnet"
)

// RateLimited wraps a Service with a token-bucket readiness gate. Ready
// blocks until a token is available (r tokens per second, bursts up to
// burst), so the dispatch loop admits calls at most at that rate.
func RateLimited(svc Service, r float64, burst int) Service {
	return &rateLimited{
		inner:   svc,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

type rateLimited struct {
	inner   Service
	limiter *rate.Limiter
}

func (s *rateLimited) Name() string { return s.inner.Name() }

func (s *rateLimited) Ready(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.Ready(ctx)
}

func (s *rateLimited) Call(ctx context.Context, peer simnet.Addr, path message.Path, requests <-chan any) <-chan message.Result {
	return s.inner.Call(ctx, peer, path, requests)
}

// Bounded wraps a Service with a concurrency readiness gate: at most limit
// calls run at once. Ready acquires a slot and blocks when all slots are
// taken; the slot is released when the call's result stream completes.
//
// The dispatcher always invokes Call after a successful Ready, which is
// what keeps acquire and release paired.
func Bounded(svc Service, limit int64) Service {
	return &bounded{
		inner: svc,
		sem:   semaphore.NewWeighted(limit),
	}
}

type bounded struct {
	inner Service
	sem   *semaphore.Weighted
}

func (s *bounded) Name() string { return s.inner.Name() }

func (s *bounded) Ready(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := s.inner.Ready(ctx); err != nil {
		s.sem.Release(1)
		return err
	}
	return nil
}

func (s *bounded) Call(ctx context.Context, peer simnet.Addr, path message.Path, requests <-chan any) <-chan message.Result {
	inner := s.inner.Call(ctx, peer, path, requests)
	out := make(chan message.Result)
	go func() {
		defer s.sem.Release(1)
		defer close(out)
		for res := range inner {
			out <- res
		}
	}()
	return out
}
