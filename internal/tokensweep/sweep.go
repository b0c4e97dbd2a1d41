// Package tokensweep removes user tokens older than a configured delay.
//
// The sweep is a plain task body: the app registers Run as a periodic LOW
// priority job on the task manager, so it shares the worker pool with every
// other unit of work.
package tokensweep

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Vampouille/georchestra/internal/storage"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// Store is the subset of storage.Store the sweep needs.
type Store interface {
	FindCreatedBefore(ctx context.Context, t time.Time) ([]storage.UserToken, error)
	DeleteToken(ctx context.Context, uid string) error
}

type Service struct {
	store   Store
	delay   time.Duration
	limiter *rate.Limiter
	log     logx.Logger

	now func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Cutoff  time.Time
	Found   int
	Deleted int
}

// New returns a sweep deleting tokens created more than delay ago.
// deletesPerSec <= 0 disables throttling.
func New(store Store, delay time.Duration, deletesPerSec float64, log logx.Logger) *Service {
	lim := rate.NewLimiter(rate.Inf, 1)
	if deletesPerSec > 0 {
		burst := int(deletesPerSec)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(deletesPerSec), burst)
	}
	return &Service{store: store, delay: delay, limiter: lim, log: log, now: time.Now}
}

// Run is the task body. It stops at the first store error or when ctx ends.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

func (s *Service) Sweep(ctx context.Context) (Result, error) {
	res := Result{Cutoff: s.now().Add(-s.delay)}
	tokens, err := s.store.FindCreatedBefore(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("list expired tokens: %w", err)
	}
	res.Found = len(tokens)

	for _, t := range tokens {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if err := s.store.DeleteToken(ctx, t.UID); err != nil {
			return res, fmt.Errorf("delete token of %s: %w", t.UID, err)
		}
		res.Deleted++
	}

	if res.Found > 0 {
		s.log.Info("expired tokens removed", logx.Int("deleted", res.Deleted), logx.Time("cutoff", res.Cutoff))
	} else {
		s.log.Debug("no expired tokens", logx.Time("cutoff", res.Cutoff))
	}
	return res, nil
}
