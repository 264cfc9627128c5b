package refresher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"salesdash/internal/logger"
)

// Syncer is the unit of work run on every cycle.
type Syncer interface {
	Sync(ctx context.Context, tenant string) (int, error)
}

// Service keeps the local catalog snapshot fresh. A failed cycle is logged
// and retried on the next tick; it never stops the loop.
type Service struct {
	syncer   Syncer
	tenants  []string
	interval time.Duration
	log      zerolog.Logger
}

func NewService(syncer Syncer, tenants []string, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		syncer:   syncer,
		tenants:  tenants,
		interval: interval,
		log:      logger.WithComponent("refresher"),
	}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		s.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

// RunCycle syncs every tenant once and returns how many succeeded.
func (s *Service) RunCycle(ctx context.Context) int {
	ok := 0
	for _, tenant := range s.tenants {
		if ctx.Err() != nil {
			return ok
		}
		n, err := s.syncer.Sync(ctx, tenant)
		if err != nil {
			s.log.Error().Err(err).Str("tenant", tenant).Msg("refresh cycle failed")
			continue
		}
		ok++
		s.log.Info().Str("tenant", tenant).Int("items", n).Msg("refresh cycle done")
	}
	return ok
}
