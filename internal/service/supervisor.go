package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autoleads/internal/logger"
)

// CampaignRunner runs one campaign's dispatch loop to a stopping point
type CampaignRunner interface {
	Run(ctx context.Context, campaignID int) RunOutcome
}

// RunningCampaignLister lists running campaigns that no worker currently holds
type RunningCampaignLister interface {
	ListUnleasedRunning(ctx context.Context) ([]int, error)
}

// Supervisor keeps at most one dispatch goroutine per campaign in this process
type Supervisor struct {
	runner CampaignRunner
	lister RunningCampaignLister

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[int]struct{}
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewSupervisor creates a supervisor whose runs are cancelled when parent is done or on Shutdown
func NewSupervisor(parent context.Context, runner CampaignRunner, lister RunningCampaignLister) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		runner: runner,
		lister: lister,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[int]struct{}),
		log:    logger.WithComponent("supervisor"),
	}
}

// Launch starts a run for the campaign unless one is already active here.
// It reports whether a new run was started.
func (s *Supervisor) Launch(campaignID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	if _, running := s.active[campaignID]; running {
		s.log.Debug().Int("campaign_id", campaignID).Msg("Campaign run already active")
		return false
	}

	s.active[campaignID] = struct{}{}
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, campaignID)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Int("campaign_id", campaignID).Msg("Campaign run panicked")
			}
		}()

		start := time.Now()
		outcome := s.runner.Run(s.ctx, campaignID)
		s.log.Info().
			Int("campaign_id", campaignID).
			Str("outcome", string(outcome)).
			Dur("duration", time.Since(start)).
			Msg("Campaign run finished")
	}()

	s.log.Info().Int("campaign_id", campaignID).Msg("Campaign run launched")
	return true
}

// Active returns the campaign ids with a run in this process
func (s *Supervisor) Active() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Recover launches every running campaign without a live lease and returns how many were started
func (s *Supervisor) Recover(ctx context.Context) (int, error) {
	ids, err := s.lister.ListUnleasedRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list running campaigns: %w", err)
	}

	launched := 0
	for _, id := range ids {
		if s.Launch(id) {
			launched++
		}
	}
	if launched > 0 {
		s.log.Info().Int("launched", launched).Msg("Recovered running campaigns")
	}
	return launched, nil
}

// RunRecovery sweeps immediately and then every interval until ctx is done
func (s *Supervisor) RunRecovery(ctx context.Context, interval time.Duration) {
	if _, err := s.Recover(ctx); err != nil {
		s.log.Error().Err(err).Msg("Recovery sweep failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Recover(ctx); err != nil {
				s.log.Error().Err(err).Msg("Recovery sweep failed")
			}
		}
	}
}

// Shutdown cancels every run and waits for them to stop or for timeout to pass
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for %d campaign runs", len(s.Active()))
	}
}
