package lock

import (
	"context"
	"time"

	"autoleads/internal/repository"
)

// PostgresLocker stores leases in the campaigns.locked_by / locked_until columns
type PostgresLocker struct {
	repo  repository.LeaseRepository
	owner string
	ttl   time.Duration
}

// NewPostgresLocker creates a lease store backed by the campaigns table
func NewPostgresLocker(repo repository.LeaseRepository, owner string, ttl time.Duration) *PostgresLocker {
	return &PostgresLocker{repo: repo, owner: owner, ttl: ttl}
}

func (l *PostgresLocker) Acquire(ctx context.Context, campaignID int) (bool, error) {
	return l.repo.AcquireLease(ctx, campaignID, l.owner, l.ttl)
}

func (l *PostgresLocker) Renew(ctx context.Context, campaignID int) (bool, error) {
	return l.repo.RenewLease(ctx, campaignID, l.owner, l.ttl)
}

func (l *PostgresLocker) Release(ctx context.Context, campaignID int) error {
	return l.repo.ReleaseLease(ctx, campaignID, l.owner)
}

func (l *PostgresLocker) Owner() string {
	return l.owner
}
