package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulator is an in-process gateway used in development and demos
type Simulator struct {
	successRate float64 // 0.0 to 1.0 (e.g., 0.95 = 95% success)
	maxLatency  time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulator creates a simulated gateway. successRate is clamped to [0, 1].
func NewSimulator(successRate float64, maxLatency time.Duration) *Simulator {
	if successRate < 0.0 {
		successRate = 0.0
	}
	if successRate > 1.0 {
		successRate = 1.0
	}

	return &Simulator{
		successRate: successRate,
		maxLatency:  maxLatency,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var simulatedFailures = []string{
	"network timeout",
	"invalid phone number",
	"rate limit exceeded",
	"service temporarily unavailable",
	"insufficient balance",
}

// Send simulates latency and a success/failure draw
func (s *Simulator) Send(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	s.mu.Lock()
	var latency time.Duration
	if s.maxLatency > 0 {
		latency = time.Duration(s.rand.Int63n(int64(s.maxLatency)))
	}
	success := s.rand.Float64() < s.successRate
	reason := simulatedFailures[s.rand.Intn(len(simulatedFailures))]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, &SendError{Reason: ctx.Err().Error()}
		}
	}

	if !success {
		return nil, &SendError{Reason: reason}
	}

	return &Result{
		ID:      "sim-" + uuid.NewString(),
		Status:  StatusSuccess,
		Latency: time.Since(start),
	}, nil
}
