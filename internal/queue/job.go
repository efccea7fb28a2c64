package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionRun asks a worker to drive a campaign's dispatch loop
const ActionRun = "run"

// RunJob is the queue payload published on every campaign start or resume
type RunJob struct {
	JobID       string    `json:"job_id"`
	CampaignID  int       `json:"campaign_id"`
	Action      string    `json:"action"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRunJob creates a run job with a fresh id
func NewRunJob(campaignID int) RunJob {
	return RunJob{
		JobID:       uuid.NewString(),
		CampaignID:  campaignID,
		Action:      ActionRun,
		RequestedAt: time.Now().UTC(),
	}
}

// DecodeRunJob parses and validates a delivery body
func DecodeRunJob(body []byte) (*RunJob, error) {
	var job RunJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run job: %w", err)
	}
	if job.CampaignID <= 0 {
		return nil, fmt.Errorf("run job %q has no campaign id", job.JobID)
	}
	if job.Action == "" {
		job.Action = ActionRun
	}
	if job.Action != ActionRun {
		return nil, fmt.Errorf("run job %q has unknown action %q", job.JobID, job.Action)
	}
	return &job, nil
}
