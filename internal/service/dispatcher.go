package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autoleads/internal/gateway"
	"autoleads/internal/lock"
	"autoleads/internal/logger"
	"autoleads/internal/metrics"
	"autoleads/internal/models"
	"autoleads/internal/repository"
)

// RunOutcome is how a dispatch run ended
type RunOutcome string

const (
	OutcomeCompleted   RunOutcome = "completed"
	OutcomePaused      RunOutcome = "paused"
	OutcomeCancelled   RunOutcome = "cancelled"
	OutcomeNotRunning  RunOutcome = "not_running"
	OutcomeLeaseHeld   RunOutcome = "lease_held"
	OutcomeLeaseLost   RunOutcome = "lease_lost"
	OutcomeInterrupted RunOutcome = "interrupted"
	OutcomeAborted     RunOutcome = "aborted"
)

type leadResult int

const (
	leadSent leadResult = iota
	leadFailed
	leadInterrupted
)

// bookkeepingTimeout bounds store writes made after the run context is cancelled
const bookkeepingTimeout = 10 * time.Second

// DispatcherDeps are the collaborators of a Dispatcher
type DispatcherDeps struct {
	Campaigns repository.CampaignRepository
	Leads     repository.LeadRepository
	Orgs      repository.OrganizationRepository
	Gateways  gateway.Resolver
	Threads   *ThreadService
	Templates *TemplateService
	Logs      *LogSink
	Locker    lock.Locker
	// RenewInterval bounds how long the loop waits between lease renewals
	RenewInterval time.Duration
}

// Dispatcher runs a campaign's send loop. A run walks the pending leads in
// lead_order, re-reading the campaign status before each one, and sleeps the
// campaign delay between sends.
type Dispatcher struct {
	campaigns     repository.CampaignRepository
	leads         repository.LeadRepository
	orgs          repository.OrganizationRepository
	gateways      gateway.Resolver
	threads       *ThreadService
	templates     *TemplateService
	logs          *LogSink
	locker        lock.Locker
	renewInterval time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	renew := deps.RenewInterval
	if renew <= 0 {
		renew = time.Minute
	}
	return &Dispatcher{
		campaigns:     deps.Campaigns,
		leads:         deps.Leads,
		orgs:          deps.Orgs,
		gateways:      deps.Gateways,
		threads:       deps.Threads,
		templates:     deps.Templates,
		logs:          deps.Logs,
		locker:        deps.Locker,
		renewInterval: renew,
		sleep:         sleepContext,
		now:           time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// campaignRun is the state of one Run call
type campaignRun struct {
	campaign *models.Campaign
	org      *models.Organization
	sender   gateway.Sender
	log      zerolog.Logger
}

// Run drives a campaign until it completes, is paused or cancelled, or ctx is done.
// It never returns lead-level errors; everything is recorded in the campaign log.
// Cancelling ctx leaves the campaign running for the recovery sweep.
func (d *Dispatcher) Run(ctx context.Context, campaignID int) RunOutcome {
	outcome := d.run(ctx, campaignID)
	metrics.CampaignRunsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (d *Dispatcher) run(ctx context.Context, campaignID int) RunOutcome {
	log := logger.WithCampaign("dispatcher", campaignID)

	acquired, err := d.locker.Acquire(ctx, campaignID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire campaign lease")
		return OutcomeAborted
	}
	if !acquired {
		log.Info().Msg("Campaign lease held by another worker, skipping run")
		return OutcomeLeaseHeld
	}

	leaseLost := false
	defer func() {
		if leaseLost {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if err := d.locker.Release(releaseCtx, campaignID); err != nil {
			log.Warn().Err(err).Msg("Failed to release campaign lease")
		}
	}()

	metrics.CampaignRunsActive.Inc()
	defer metrics.CampaignRunsActive.Dec()

	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load campaign")
		return OutcomeAborted
	}
	if campaign.Status != models.CampaignStatusRunning {
		log.Info().Str("status", string(campaign.Status)).Msg("Campaign is not running, nothing to do")
		return OutcomeNotRunning
	}

	run := &campaignRun{campaign: campaign, log: log}

	if outcome, ok := d.resolveSender(ctx, run); !ok {
		return outcome
	}

	pending, err := d.leads.ListPending(ctx, campaignID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending leads")
		d.appendLog(ctx, run, models.LogLevelError, "Could not load pending leads; run will be retried by recovery",
			models.Metadata{"error": err.Error()})
		return OutcomeAborted
	}

	if len(pending) == 0 {
		d.appendLog(ctx, run, models.LogLevelInfo, "No pending leads remain", nil)
		return d.finish(ctx, run)
	}

	d.appendLog(ctx, run, models.LogLevelInfo,
		fmt.Sprintf("Campaign run started: %d pending leads, %ds between messages", len(pending), campaign.DelaySeconds),
		models.Metadata{
			"pending":       len(pending),
			"delay_seconds": campaign.DelaySeconds,
			"resume_index":  campaign.CurrentLeadIndex,
			"worker":        d.locker.Owner(),
		})

	for i, lead := range pending {
		if outcome, stop := d.checkpoint(ctx, run, lead); stop {
			leaseLost = outcome == OutcomeLeaseLost
			return outcome
		}

		if d.processLead(ctx, run, lead) == leadInterrupted {
			d.appendLog(ctx, run, models.LogLevelWarning,
				fmt.Sprintf("Run interrupted while sending to %s; lead left pending", lead.PhoneNumber),
				models.Metadata{"lead_id": lead.ID, "lead_order": lead.LeadOrder})
			return OutcomeInterrupted
		}

		if i < len(pending)-1 {
			if lost, err := d.wait(ctx, campaignID, time.Duration(campaign.DelaySeconds)*time.Second); err != nil {
				leaseLost = lost
				if lost {
					d.appendLog(ctx, run, models.LogLevelWarning, "Campaign lease lost while waiting; stopping this run", nil)
					return OutcomeLeaseLost
				}
				log.Info().Err(err).Msg("Run interrupted during delay")
				return OutcomeInterrupted
			}
		}
	}

	return d.finish(ctx, run)
}

// resolveSender loads the organization's gateway. Missing credentials cancel the campaign.
func (d *Dispatcher) resolveSender(ctx context.Context, run *campaignRun) (RunOutcome, bool) {
	org, err := d.orgs.GetByID(ctx, run.campaign.OrganizationID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		run.log.Error().Err(err).Msg("Failed to load organization")
		return OutcomeAborted, false
	}

	var sender gateway.Sender
	if org != nil {
		sender, err = d.gateways.For(org)
	} else {
		err = gateway.ErrMissingCredentials
	}
	if errors.Is(err, gateway.ErrMissingCredentials) {
		d.appendLog(ctx, run, models.LogLevelError,
			"SMS gateway credentials are not configured for this organization; cancelling campaign",
			models.Metadata{"organization_id": run.campaign.OrganizationID})
		return d.forceCancel(ctx, run), false
	}
	if err != nil {
		run.log.Error().Err(err).Msg("Failed to create gateway client")
		d.appendLog(ctx, run, models.LogLevelError, "Could not create SMS gateway client",
			models.Metadata{"error": err.Error()})
		return OutcomeAborted, false
	}

	run.org = org
	run.sender = sender
	return "", true
}

func (d *Dispatcher) forceCancel(ctx context.Context, run *campaignRun) RunOutcome {
	id := run.campaign.ID
	_, err := d.campaigns.TransitionStatus(ctx, id,
		[]models.CampaignStatus{models.CampaignStatusRunning, models.CampaignStatusPaused, models.CampaignStatusDraft},
		models.CampaignStatusCancelled)
	if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		run.log.Error().Err(err).Msg("Failed to cancel campaign")
		return OutcomeAborted
	}

	skipped, err := d.leads.SkipPending(ctx, id)
	if err != nil {
		run.log.Error().Err(err).Msg("Failed to skip pending leads")
	}
	d.appendLog(ctx, run, models.LogLevelWarning, fmt.Sprintf("Campaign cancelled; %d pending leads skipped", skipped),
		models.Metadata{"skipped": skipped})
	return OutcomeCancelled
}

// checkpoint renews the lease and re-reads the status before a lead is processed
func (d *Dispatcher) checkpoint(ctx context.Context, run *campaignRun, lead *models.CampaignLead) (RunOutcome, bool) {
	if err := ctx.Err(); err != nil {
		return OutcomeInterrupted, true
	}

	held, err := d.locker.Renew(ctx, run.campaign.ID)
	if err != nil {
		run.log.Error().Err(err).Msg("Failed to renew campaign lease")
		return OutcomeAborted, true
	}
	if !held {
		d.appendLog(ctx, run, models.LogLevelWarning, "Campaign lease lost to another worker; stopping this run", nil)
		return OutcomeLeaseLost, true
	}

	status, err := d.campaigns.GetStatus(ctx, run.campaign.ID)
	if err != nil {
		run.log.Error().Err(err).Msg("Failed to re-read campaign status")
		return OutcomeAborted, true
	}

	switch status {
	case models.CampaignStatusRunning:
		return "", false
	case models.CampaignStatusPaused:
		d.appendLog(ctx, run, models.LogLevelWarning,
			fmt.Sprintf("Campaign paused; stopping before lead %d (%s)", lead.LeadOrder, lead.PhoneNumber),
			models.Metadata{"next_lead_order": lead.LeadOrder})
		return OutcomePaused, true
	case models.CampaignStatusCancelled:
		d.appendLog(ctx, run, models.LogLevelWarning,
			fmt.Sprintf("Campaign cancelled; stopping before lead %d (%s)", lead.LeadOrder, lead.PhoneNumber),
			models.Metadata{"next_lead_order": lead.LeadOrder})
		return OutcomeCancelled, true
	default:
		d.appendLog(ctx, run, models.LogLevelWarning, fmt.Sprintf("Campaign is %s; stopping", status), nil)
		return OutcomeNotRunning, true
	}
}

// wait sleeps for the campaign delay, renewing the lease at least every renewInterval.
// lost is true when the lease was taken over while waiting.
func (d *Dispatcher) wait(ctx context.Context, campaignID int, delay time.Duration) (lost bool, err error) {
	for delay > 0 {
		step := delay
		if step > d.renewInterval {
			step = d.renewInterval
		}
		if err := d.sleep(ctx, step); err != nil {
			return false, err
		}
		delay -= step

		if delay > 0 {
			held, err := d.locker.Renew(ctx, campaignID)
			if err != nil {
				return false, err
			}
			if !held {
				return true, errors.New("campaign lease lost")
			}
		}
	}
	return false, ctx.Err()
}

// processLead sends one lead. Any error or panic becomes that lead's failure.
func (d *Dispatcher) processLead(ctx context.Context, run *campaignRun, lead *models.CampaignLead) (result leadResult) {
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			run.log.Error().Interface("panic", r).Int("lead_id", lead.ID).Msg("Recovered panic while processing lead")
			if recorded {
				return
			}
			d.markFailed(ctx, run, lead, fmt.Sprintf("internal error: %v", r))
			result = leadFailed
		}
	}()

	campaign := run.campaign
	content := d.templates.Render(campaign.MessageTemplate, lead.Fields(), campaign.UsePersonalization)

	d.appendLog(ctx, run, models.LogLevelInfo,
		fmt.Sprintf("Sending message %d/%d to %s", lead.LeadOrder+1, campaign.TotalLeads, lead.PhoneNumber),
		models.Metadata{"lead_id": lead.ID, "lead_order": lead.LeadOrder, "phone": lead.PhoneNumber})

	start := time.Now()
	sent, err := run.sender.Send(ctx, gateway.Request{
		Content: content,
		From:    run.org.SMSFromNumber,
		To:      lead.PhoneNumber,
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.GatewayRequestDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		if ctx.Err() != nil {
			return leadInterrupted
		}
		recorded = true
		d.markFailed(ctx, run, lead, failureReason(err))
		return leadFailed
	}
	metrics.GatewayRequestDuration.WithLabelValues("sent").Observe(elapsed.Seconds())

	d.appendLog(ctx, run, models.LogLevelInfo,
		fmt.Sprintf("Gateway accepted message to %s", lead.PhoneNumber),
		models.Metadata{"lead_id": lead.ID, "gateway_id": sent.ID, "gateway_status": sent.Status, "latency_ms": elapsed.Milliseconds()})

	recorded = true
	// The SMS is out; bookkeeping must finish even if the run is being stopped.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	d.recordSent(writeCtx, run, lead, content, sent)
	return leadSent
}

func (d *Dispatcher) recordSent(ctx context.Context, run *campaignRun, lead *models.CampaignLead, content string, sent *gateway.Result) {
	campaign := run.campaign
	assignee := lead.AssignedTo

	rec, err := d.threads.RecordOutbound(ctx, OutboundRecord{
		Phone:          lead.PhoneNumber,
		Content:        content,
		FromNumber:     run.org.SMSFromNumber,
		ExternalID:     sent.ID,
		OrganizationID: campaign.OrganizationID,
		AssignedTo:     &assignee,
		ContactName:    lead.Name,
		ThreadMetadata: models.Metadata{
			"seller_name":   lead.Name,
			"vehicle_info":  lead.VehicleInfo(),
			"listing_link":  lead.ListingLink,
			"source":        SourceCampaign,
			"campaign_id":   campaign.ID,
			"campaign_name": campaign.Name,
		},
		MessageMetadata: models.Metadata{
			"campaign_id":         campaign.ID,
			"campaign_name":       campaign.Name,
			"lead_id":             lead.ID,
			"is_initial_outreach": true,
			"source":              SourceCampaign,
			"sent_by":             assignee.String(),
		},
	})

	var messageID *int
	threadID := lead.PhoneNumber
	threadCreated := false
	if rec != nil {
		messageID = rec.MessageID
		threadID = rec.ThreadID
		threadCreated = rec.ThreadCreated
	}
	if err != nil {
		d.appendLog(ctx, run, models.LogLevelWarning,
			fmt.Sprintf("Message to %s was sent but conversation records are incomplete", lead.PhoneNumber),
			models.Metadata{"lead_id": lead.ID, "error": err.Error()})
	}

	// Counters only move with the lead row so sent+failed never exceeds the terminal leads
	if err := d.leads.MarkSent(ctx, lead.ID, messageID, d.now().UTC()); err != nil {
		run.log.Error().Err(err).Int("lead_id", lead.ID).Msg("Failed to mark lead sent")
	} else if err := d.campaigns.IncrementSent(ctx, campaign.ID, lead.LeadOrder+1); err != nil {
		run.log.Error().Err(err).Int("lead_id", lead.ID).Msg("Failed to increment sent count")
	}
	metrics.CampaignMessagesTotal.WithLabelValues("sent").Inc()

	details := models.Metadata{
		"lead_id":        lead.ID,
		"phone":          lead.PhoneNumber,
		"thread_id":      threadID,
		"thread_created": threadCreated,
		"gateway_id":     sent.ID,
	}
	if messageID != nil {
		details["message_id"] = *messageID
	}
	d.appendLog(ctx, run, models.LogLevelSuccess, fmt.Sprintf("Message sent to %s", lead.PhoneNumber), details)
}

// failureReason is the text stored on a failed lead
func failureReason(err error) string {
	var sendErr *gateway.SendError
	if errors.As(err, &sendErr) && sendErr.Reason != "" {
		return sendErr.Reason
	}
	return err.Error()
}

func (d *Dispatcher) markFailed(ctx context.Context, run *campaignRun, lead *models.CampaignLead, reason string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := d.leads.MarkFailed(writeCtx, lead.ID, reason); err != nil {
		run.log.Warn().Err(err).Int("lead_id", lead.ID).Msg("Failed to mark lead failed")
	} else if err := d.campaigns.IncrementFailed(writeCtx, run.campaign.ID, lead.LeadOrder+1); err != nil {
		run.log.Error().Err(err).Int("lead_id", lead.ID).Msg("Failed to increment failed count")
	}
	metrics.CampaignMessagesTotal.WithLabelValues("failed").Inc()

	d.appendLog(writeCtx, run, models.LogLevelError,
		fmt.Sprintf("Failed to send to %s: %s", lead.PhoneNumber, reason),
		models.Metadata{"lead_id": lead.ID, "phone": lead.PhoneNumber, "error": reason})
}

// finish completes a campaign that is still running after its pending leads are drained
func (d *Dispatcher) finish(ctx context.Context, run *campaignRun) RunOutcome {
	id := run.campaign.ID
	completed, err := d.campaigns.TransitionStatus(ctx, id,
		[]models.CampaignStatus{models.CampaignStatusRunning}, models.CampaignStatusCompleted)
	if errors.Is(err, repository.ErrStatusConflict) {
		status, statusErr := d.campaigns.GetStatus(ctx, id)
		if statusErr != nil {
			run.log.Error().Err(statusErr).Msg("Failed to re-read campaign status")
			return OutcomeAborted
		}
		d.appendLog(ctx, run, models.LogLevelInfo, fmt.Sprintf("Run finished with campaign %s", status), nil)
		switch status {
		case models.CampaignStatusPaused:
			return OutcomePaused
		case models.CampaignStatusCancelled:
			return OutcomeCancelled
		default:
			return OutcomeNotRunning
		}
	}
	if err != nil {
		run.log.Error().Err(err).Msg("Failed to complete campaign")
		return OutcomeAborted
	}

	d.appendLog(ctx, run, models.LogLevelSuccess,
		fmt.Sprintf("Campaign completed: %d sent, %d failed", completed.SentCount, completed.FailedCount),
		models.Metadata{
			"sent":        completed.SentCount,
			"failed":      completed.FailedCount,
			"total_leads": completed.TotalLeads,
		})
	return OutcomeCompleted
}

func (d *Dispatcher) appendLog(ctx context.Context, run *campaignRun, level models.LogLevel, message string, details models.Metadata) {
	if err := d.logs.Append(ctx, run.campaign.ID, level, message, details); err != nil {
		run.log.Error().Err(err).Msg("Failed to append campaign log")
	}
}
