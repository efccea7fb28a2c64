// Package lock provides the per-campaign run lease that keeps a campaign's
// dispatch loop single-flight across worker processes.
package lock

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Locker holds campaign run leases on behalf of one worker process
type Locker interface {
	// Acquire takes the lease if it is free, expired, or already held by this owner
	Acquire(ctx context.Context, campaignID int) (bool, error)
	// Renew extends a lease this owner still holds; false means it was lost
	Renew(ctx context.Context, campaignID int) (bool, error)
	// Release drops the lease if this owner holds it
	Release(ctx context.Context, campaignID int) error
	// Owner identifies this process in lease records
	Owner() string
}

// NewOwnerID returns a lease owner id unique to this process
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s:%s", host, uuid.NewString())
}
