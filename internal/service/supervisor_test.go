package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner blocks every run until its context is done or release is closed
type blockingRunner struct {
	mu      sync.Mutex
	started []int
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, campaignID int) RunOutcome {
	r.mu.Lock()
	r.started = append(r.started, campaignID)
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return OutcomeInterrupted
	case <-r.release:
		return OutcomeCompleted
	}
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

type staticLister []int

func (l staticLister) ListUnleasedRunning(context.Context) ([]int, error) {
	return l, nil
}

func TestSupervisor_LaunchIsSingleFlight(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	sup := NewSupervisor(context.Background(), runner, staticLister(nil))

	assert.True(t, sup.Launch(7))
	assert.False(t, sup.Launch(7), "a second launch for the same campaign is ignored")
	assert.True(t, sup.Launch(8))
	assert.Equal(t, []int{7, 8}, sup.Active())

	close(runner.release)
	require.Eventually(t, func() bool { return len(sup.Active()) == 0 }, time.Second, 5*time.Millisecond)

	assert.True(t, sup.Launch(7), "a finished campaign can be launched again")
	require.NoError(t, sup.Shutdown(time.Second))
}

func TestSupervisor_RecoverLaunchesUnleased(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	sup := NewSupervisor(context.Background(), runner, staticLister{3, 4})

	sup.Launch(3)
	launched, err := sup.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, launched)

	require.Eventually(t, func() bool { return runner.count() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sup.Shutdown(time.Second))
}

func TestSupervisor_ShutdownCancelsRuns(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	sup := NewSupervisor(context.Background(), runner, staticLister(nil))
	sup.Launch(1)

	require.NoError(t, sup.Shutdown(time.Second))
	assert.Empty(t, sup.Active())
	assert.False(t, sup.Launch(2), "no launches after shutdown")
}

func TestSupervisor_DrivesDispatcher(t *testing.T) {
	env := newTestEnv()
	c := runningCampaign(env, "+17805550001")
	campaignRepo := fakeCampaignRepo{env.store}
	sup := NewSupervisor(context.Background(), env.dispatcher, campaignRepo)

	launched, err := sup.Recover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, launched)

	require.Eventually(t, func() bool {
		return env.store.campaign(c.ID).SentCount == 1 && len(sup.Active()) == 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, sup.Shutdown(time.Second))
}
