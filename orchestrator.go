package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome is the per-candidate result of one processing attempt.
type Outcome string

const (
	OutcomeSucceeded           Outcome = "succeeded"
	OutcomeLinkEstablishFailed Outcome = "link-establish-failed"
	OutcomeHandshakeFailed     Outcome = "handshake-failed"
	OutcomeLinkTeardownFailed  Outcome = "link-teardown-failed"
)

// Report aggregates the outcomes of a whole run.
type Report struct {
	Succeeded           int
	LinkEstablishFailed int
	HandshakeFailed     int
	LinkTeardownFailed  int
	Cycles              int
}

func (r *Report) record(o Outcome) {
	switch o {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeLinkEstablishFailed:
		r.LinkEstablishFailed++
	case OutcomeHandshakeFailed:
		r.HandshakeFailed++
	case OutcomeLinkTeardownFailed:
		r.LinkTeardownFailed++
	}
}

// OrchestratorConfig wires the orchestrator's collaborators and run inputs.
// All fields are read once at construction; the orchestrator holds no other
// mutable state between runs.
type OrchestratorConfig struct {
	Scanner   Scanner
	Links     LinkController
	Handshake HandshakeClient
	Env       Environment

	// Deadline bounds the whole run in wall-clock time from Run start.
	// Defaults to DefaultDeadline.
	Deadline time.Duration
	// ScanDelay is the pause after a cycle that found no candidates.
	// Defaults to DefaultScanDelay.
	ScanDelay time.Duration

	// Now and Sleep are injectable for tests; nil means real time.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// Orchestrator runs the provisioning state machine: scan for candidates,
// drive each one's link lifecycle and handshake sequentially, and loop until
// a cycle provisions at least one device or the deadline elapses.
type Orchestrator struct {
	cfg    OrchestratorConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration)
	logger zerolog.Logger
}

// NewOrchestrator validates the configuration and constructs an
// Orchestrator. Each orchestrator carries a run ID in its log context.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Scanner == nil {
		return nil, errors.New("orchestrator: scanner is required")
	}
	if cfg.Links == nil {
		return nil, errors.New("orchestrator: link controller is required")
	}
	if cfg.Handshake == nil {
		return nil, errors.New("orchestrator: handshake client is required")
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.ScanDelay <= 0 {
		cfg.ScanDelay = DefaultScanDelay
	}
	o := &Orchestrator{
		cfg:    cfg,
		now:    cfg.Now,
		sleep:  cfg.Sleep,
		logger: log.With().Str("run_id", uuid.NewString()).Logger(),
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run executes scan cycles until one of them provisions at least one device,
// the deadline elapses, or ctx is canceled. A run that simply finds nothing
// is not an error; the returned Report says so.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := o.now()
	deadline := start.Add(o.cfg.Deadline)
	var report Report

	o.logger.Info().Dur("deadline", o.cfg.Deadline).Dur("scan_delay", o.cfg.ScanDelay).
		Msg("provisioning run started")

	for {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "provisioning run canceled")
		}
		if !o.now().Before(deadline) {
			o.logger.Info().Int("provisioned", report.Succeeded).Int("cycles", report.Cycles).
				Msg("deadline elapsed")
			return report, nil
		}

		report.Cycles++
		candidates, err := o.cfg.Scanner.Scan(ctx)
		if err != nil {
			// Same treatment as an empty scan: wait and try again.
			o.logger.Warn().Err(err).Msg("scan failed, retrying after delay")
			candidates = nil
		}
		if len(candidates) == 0 {
			o.logger.Debug().Int("cycle", report.Cycles).Msg("no candidates found")
			o.sleep(ctx, o.cfg.ScanDelay)
			continue
		}

		o.logger.Info().Int("cycle", report.Cycles).Int("candidates", len(candidates)).
			Msg("processing candidates")

		// Candidates are processed strictly one at a time, in discovery
		// order: the interface supports a single active link. A success
		// mid-cycle never short-circuits the remaining candidates.
		cycleSucceeded := 0
		for _, c := range candidates {
			outcome := o.provisionOne(ctx, c)
			report.record(outcome)
			if outcome == OutcomeSucceeded {
				cycleSucceeded++
			}
		}
		if cycleSucceeded > 0 {
			o.logger.Info().Int("provisioned", report.Succeeded).Int("cycles", report.Cycles).
				Msg("provisioning run complete")
			return report, nil
		}
	}
}

// provisionOne drives Connecting → Handshaking → Disconnecting for a single
// candidate. Destroy is issued exactly once on every path out of here,
// including create/activate failures.
func (o *Orchestrator) provisionOne(ctx context.Context, c Candidate) Outcome {
	logger := o.logger.With().Str("ssid", c.SSID).Logger()
	logger.Info().Msg("connecting to provisioning AP")

	link, err := o.cfg.Links.Create(ctx, c)
	if err != nil {
		logger.Error().Err(err).Msg("link create failed")
		o.destroyLink(ctx, link, logger)
		return OutcomeLinkEstablishFailed
	}
	if err := o.cfg.Links.Activate(ctx, link); err != nil {
		logger.Error().Err(err).Msg("link activate failed")
		o.destroyLink(ctx, link, logger)
		return OutcomeLinkEstablishFailed
	}

	outcome := o.handshake(ctx, c, logger)

	// Disconnecting is unconditional. Failures here are logged and demote
	// the outcome, but never abort the cycle.
	torndown := true
	if err := o.cfg.Links.Deactivate(ctx, link); err != nil {
		logger.Error().Err(err).Msg("link deactivate failed")
		torndown = false
	}
	if !o.destroyLink(ctx, link, logger) {
		torndown = false
	}
	if !torndown && outcome == OutcomeSucceeded {
		return OutcomeLinkTeardownFailed
	}
	return outcome
}

// handshake performs the identity fetch and credential push while the link
// is active. A non-2xx provisioning status is informational: the device may
// have applied the configuration anyway.
func (o *Orchestrator) handshake(ctx context.Context, c Candidate, logger zerolog.Logger) Outcome {
	identity, err := o.cfg.Handshake.FetchIdentity(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("identity fetch failed")
		return OutcomeHandshakeFailed
	}
	req := ProvisioningRequest{
		SSID:       o.cfg.Env.InfraSSID,
		Password:   o.cfg.Env.InfraPSK,
		ServerName: o.cfg.Env.ServerName,
		Port:       o.cfg.Env.ServerPort,
	}
	status, err := o.cfg.Handshake.SendProvisioning(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("deviceid", identity.DeviceID).Msg("provisioning send failed")
		return OutcomeHandshakeFailed
	}
	logger.Info().Str("deviceid", identity.DeviceID).Int("status", status).
		Str("server", o.cfg.Env.ServerName).Msg("device provisioned")
	return OutcomeSucceeded
}

// destroyLink removes the link profile and reports whether it worked. A
// leftover profile is a nuisance, not a correctness hazard: the derived
// profile name is reused on the next attempt for the same candidate.
func (o *Orchestrator) destroyLink(ctx context.Context, l Link, logger zerolog.Logger) bool {
	if err := o.cfg.Links.Destroy(ctx, l); err != nil {
		logger.Error().Err(err).Str("profile", l.Profile).Msg("link destroy failed")
		return false
	}
	return true
}
