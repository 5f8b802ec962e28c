package app

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rivwidthcloud/internal/domain"
)

// SessionGuard serializes renewals of the shared remote session. Workers pass the
// generation they submitted under; a renewal only happens when that generation is still
// current, concurrent callers share one in-flight renewal.
type SessionGuard struct {
	logger     *zap.Logger
	refresher  domain.SessionRefresher
	generation atomic.Uint64
	group      singleflight.Group

	// OnRenew is called after every successful renewal.
	OnRenew func()
}

func NewSessionGuard(logger *zap.Logger, refresher domain.SessionRefresher) *SessionGuard {
	return &SessionGuard{logger: logger, refresher: refresher}
}

func (g *SessionGuard) Generation() uint64 {
	return g.generation.Load()
}

// Renew re-acquires the session unless another worker already did it after seen.
func (g *SessionGuard) Renew(ctx context.Context, seen uint64) error {
	if g.refresher == nil {
		return domain.ErrSessionExpired
	}
	if g.generation.Load() != seen {
		return nil
	}

	_, err, shared := g.group.Do("renew", func() (any, error) {
		if g.generation.Load() != seen {
			return nil, nil
		}
		g.logger.Info("Renewing remote session", zap.Uint64("generation", seen))
		if err := g.refresher.Refresh(ctx); err != nil {
			return nil, err
		}
		g.generation.Add(1)
		if g.OnRenew != nil {
			g.OnRenew()
		}
		return nil, nil
	})
	if err != nil {
		g.logger.Error("Session renewal failed", zap.Error(err), zap.Bool("shared", shared))
	}
	return err
}
