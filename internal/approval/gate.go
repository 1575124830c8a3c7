// Package approval implements the approval gate: wait for the posting hour,
// then watch the inbox for the owner's "APPROVE <run_id>" reply until the
// grace period ends.
package approval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/mail"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/schedule"
	"github.com/linkedin-autopost/pkg/logger"
)

// Config holds the posting window and the polling cadence
type Config struct {
	Window       schedule.Window
	PollInterval time.Duration
}

// Result is the terminal state of the gate
type Result struct {
	State models.ApprovalState
	// Reason is set when State is expired
	Reason     models.Reason
	ApprovedAt time.Time
	Subject    string
	// Polls counts successful inbox reads; failed dials and reads are PollErrors
	Polls      int
	PollErrors int
}

// Gate waits for the owner's approval of one run
type Gate struct {
	dialer mail.Dialer
	clock  schedule.Clock
	cfg    Config
	log    *logger.Logger
}

// NewGate creates a gate reading approvals through dialer
func NewGate(dialer mail.Dialer, clock schedule.Clock, cfg Config, log *logger.Logger) *Gate {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Gate{
		dialer: dialer,
		clock:  clock,
		cfg:    cfg,
		log:    log.WithComponent("approval"),
	}
}

// Await blocks until the run is approved or the window closes.
//
// Before the posting hour it performs a single sleep. From the posting hour
// until the deadline (inclusive) it polls the inbox every PollInterval; the
// last poll happens at the deadline. Inbox errors during polling are logged
// and polling continues. The inbox session is logged out on every exit path.
//
// Only a missing mail configuration or a cancelled context is an error;
// running out of time is the expired state.
func (g *Gate) Await(ctx context.Context, runID string) (Result, error) {
	if !models.ValidRunID(runID) {
		return Result{State: models.ApprovalPending}, fmt.Errorf("invalid run id %q", runID)
	}
	log := g.log.WithRunID(runID)
	matcher := approvalPattern(runID)

	now := g.clock.Now()
	target := g.cfg.Window.Target(now)
	deadline := target.Add(g.cfg.Window.Grace)

	if now.After(deadline) {
		log.Warn().Time("deadline", deadline).Msg("Approval window already closed")
		return Result{State: models.ApprovalExpired, Reason: models.ReasonApprovalExpired}, nil
	}

	if now.Before(target) {
		log.Info().
			Time("until", target).
			Dur("sleep", target.Sub(now)).
			Msg("Sleeping until posting time")
		if err := schedule.SleepUntil(ctx, g.clock, target); err != nil {
			return Result{State: models.ApprovalPending}, err
		}
	}

	log.Info().Time("deadline", deadline).Dur("interval", g.cfg.PollInterval).Msg("Polling inbox for approval")

	var inbox mail.Inbox
	defer func() {
		if inbox == nil {
			return
		}
		if err := inbox.Logout(); err != nil {
			log.Warn().Err(err).Msg("Inbox logout failed")
		}
	}()

	res := Result{State: models.ApprovalPending}

	for {
		polledAt := g.clock.Now()

		if inbox == nil {
			var err error
			inbox, err = g.dialer.Dial(ctx)
			if err != nil {
				inbox = nil
				if errors.Is(err, errs.ErrConfiguration) {
					return res, err
				}
				res.PollErrors++
				log.Warn().Err(err).Msg("Inbox unavailable, will retry")
			}
		}

		if inbox != nil {
			subjects, err := inbox.UnseenSubjects(ctx)
			if err != nil {
				res.PollErrors++
				log.Warn().Err(err).Msg("Inbox poll failed, will retry")
			} else {
				res.Polls++
			}
			for _, subject := range subjects {
				if matcher.MatchString(subject) {
					res.State = models.ApprovalApproved
					res.ApprovedAt = polledAt
					res.Subject = subject
					log.Info().Str("subject", subject).Int("polls", res.Polls).Msg("Approval email detected")
					return res, nil
				}
			}
		}

		if !polledAt.Before(deadline) {
			break
		}

		wait := deadline.Sub(g.clock.Now())
		if wait > g.cfg.PollInterval {
			wait = g.cfg.PollInterval
		}
		if wait > 0 {
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return res, err
			}
		}
	}

	res.State = models.ApprovalExpired
	res.Reason = models.ReasonApprovalExpired
	// the inbox was never read, so the owner's reply may be sitting in it
	if res.Polls == 0 {
		res.Reason = models.ReasonInboxUnavailable
	}
	log.Info().
		Int("polls", res.Polls).
		Int("poll_errors", res.PollErrors).
		Str("reason", string(res.Reason)).
		Msg("No approval received by deadline")
	return res, nil
}

// MatchesApproval reports whether subject carries the approval token for
// runID. The match ignores case and requires the whole run id: a token for
// another run that shares a prefix does not match.
func MatchesApproval(subject, runID string) bool {
	return approvalPattern(runID).MatchString(subject)
}

func approvalPattern(runID string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)(^|[^A-Za-z0-9_-])APPROVE\s+%s($|[^A-Za-z0-9_-])`, regexp.QuoteMeta(runID)))
}
