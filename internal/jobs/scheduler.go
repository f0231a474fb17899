package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RefreshTokenPruner clears refresh-token slots whose expiry has passed.
type RefreshTokenPruner interface {
	ClearExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// Scheduler runs periodic maintenance. Currently a single nightly job: empty
// the refresh-token slots of sessions that expired on their own, so the users
// table does not accumulate dead tokens.
type Scheduler struct {
	cron   *cron.Cron
	pruner RefreshTokenPruner
	log    zerolog.Logger
}

func NewScheduler(pruner RefreshTokenPruner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		pruner: pruner,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if s.pruner == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("30 3 * * *", s.pruneExpiredSessions); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler jobs did not finish before shutdown timeout")
	}
}

func (s *Scheduler) pruneExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cleared, err := s.pruner.ClearExpiredRefreshTokens(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("prune expired sessions failed")
		return
	}
	if cleared > 0 {
		s.log.Info().Int64("cleared", cleared).Msg("expired refresh tokens pruned")
	}
}
