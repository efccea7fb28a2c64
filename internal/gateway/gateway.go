// Package gateway sends SMS through an organization's third-party gateway.
package gateway

import (
	"context"
	"fmt"
	"time"
)

// StatusSuccess is the only response status treated as a successful send
const StatusSuccess = "success"

// Request is one outbound SMS
type Request struct {
	Content string `json:"content"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Result is the gateway's answer to a successful send
type Result struct {
	ID      string
	Status  string
	Message string
	Latency time.Duration
}

// Sender sends one SMS. Any returned error is a per-message failure.
type Sender interface {
	Send(ctx context.Context, req Request) (*Result, error)
}

// SendError is a send the gateway rejected or that never got a usable answer
type SendError struct {
	StatusCode int
	Reason     string
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway rejected message (HTTP %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("gateway rejected message: %s", e.Reason)
}
