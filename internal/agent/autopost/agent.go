// Package autopost runs the daily workflow: pick a topic, generate the post,
// archive it, mail a preview, wait for approval, publish and report.
package autopost

import (
	"context"
	"errors"
	"fmt"

	"github.com/linkedin-autopost/internal/ai"
	"github.com/linkedin-autopost/internal/approval"
	"github.com/linkedin-autopost/internal/archive"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/media"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/notify"
	"github.com/linkedin-autopost/internal/schedule"
	"github.com/linkedin-autopost/internal/storage"
	"github.com/linkedin-autopost/internal/tracker"
	"github.com/linkedin-autopost/pkg/logger"
)

// TopicSelector picks the day's topic and never fails
type TopicSelector interface {
	Select(ctx context.Context) models.Topic
}

// TextGenerator writes the post text
type TextGenerator interface {
	Generate(ctx context.Context, title string, mode models.ContentMode) (ai.Result, error)
}

// ImageProducer writes the post image and names its source
type ImageProducer interface {
	Produce(ctx context.Context, req media.Request, outPath string) (string, error)
}

// Notifier mails the owner
type Notifier interface {
	SendPreview(ctx context.Context, runID, title string) error
	SendSummary(ctx context.Context, s notify.Summary) error
}

// Approver blocks until the run is approved or expired
type Approver interface {
	Await(ctx context.Context, runID string) (approval.Result, error)
}

// Publisher posts to LinkedIn in a single attempt
type Publisher interface {
	Publish(ctx context.Context, title, text, imagePath string) (string, error)
}

// Recorder keeps an external record of finished runs
type Recorder interface {
	Record(ctx context.Context, e tracker.Entry) error
}

// Deps are the components of a run. Ledger and Tracker are optional.
type Deps struct {
	Clock     schedule.Clock
	Topics    TopicSelector
	Text      TextGenerator
	Images    ImageProducer
	Archive   *archive.Store
	Notifier  Notifier
	Approval  Approver
	Publisher Publisher
	Ledger    storage.RunLedger
	Tracker   Recorder
}

// Agent runs the workflow once per call
type Agent struct {
	Deps
	cfg config.ScheduleConfig
	log *logger.Logger

	// forced replaces the weekday mode when set
	forced models.ContentMode
}

// NewAgent creates the workflow agent
func NewAgent(deps Deps, cfg config.ScheduleConfig, log *logger.Logger) *Agent {
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock{}
	}
	return &Agent{
		Deps: deps,
		cfg:  cfg,
		log:  log.WithComponent("autopost"),
	}
}

// ForceMode makes every run use mode instead of the weekday's mode.
// Forcing ModeNone makes runs skip.
func (a *Agent) ForceMode(mode models.ContentMode) {
	a.forced = mode
}

// Report describes what a run did
type Report struct {
	// Skipped is set when the run exited before doing anything
	Skipped string
	Run     *models.Run
	Outcome models.Outcome
}

// Run executes the workflow. Every run that gets past the early exits ends
// with exactly one summary email. The returned error is non-nil only when
// the run stopped on an error; an expired approval or a failed publish is a
// normal outcome carried by the report.
func (a *Agent) Run(ctx context.Context) (*Report, error) {
	now := a.Clock.Now()

	if schedule.TooEarly(now, a.cfg.EarliestHour) {
		a.log.Info().
			Int("earliest_hour", a.cfg.EarliestHour).
			Msg("Too early to run, exiting")
		return &Report{Skipped: "too early"}, nil
	}

	mode := schedule.ModeFor(now)
	if a.forced != "" {
		mode = a.forced
	}
	if !mode.Produces() {
		a.log.Info().Str("weekday", now.Weekday().String()).Msg("No post today")
		return &Report{Skipped: "no post day"}, nil
	}

	topic := a.Topics.Select(ctx)
	run := &models.Run{
		ID:        models.NewRunID(now),
		Topic:     topic,
		Mode:      mode,
		CreatedAt: now,
	}
	log := a.log.WithRunID(run.ID)
	log.Info().
		Str("title", topic.Title).
		Str("mode", string(mode)).
		Msg("Starting run")

	if err := a.prepare(ctx, run); err != nil {
		return a.fail(ctx, run, err)
	}

	res, err := a.Approval.Await(ctx, run.ID)
	if err != nil {
		return a.fail(ctx, run, fmt.Errorf("approval: %w", err))
	}

	outcome := models.Outcome{
		RunID:    run.ID,
		Approval: res.State,
		Reason:   res.Reason,
	}
	if res.State == models.ApprovalApproved {
		urn, err := a.Publisher.Publish(ctx, topic.Title, run.Text, run.ImagePath)
		if err != nil {
			log.Error().Err(err).Msg("Publish failed")
			outcome.Reason = models.ReasonPublishFailed
			outcome.Detail = err.Error()
		} else {
			outcome.Posted = true
			outcome.Reason = models.ReasonPublished
			outcome.PostURN = urn
		}
	} else {
		log.Info().Str("reason", string(res.Reason)).Msg("No approval received by deadline, not posting")
	}

	return a.finish(ctx, run, outcome)
}

// prepare produces and archives the run's artifacts, then mails the preview
func (a *Agent) prepare(ctx context.Context, run *models.Run) error {
	if err := a.Archive.Prepare(run.ID); err != nil {
		return err
	}

	text, err := a.Text.Generate(ctx, run.Topic.Title, run.Mode)
	if err != nil {
		return fmt.Errorf("generate text: %w", err)
	}
	run.Text = text.Text

	run.ImagePath = a.Archive.ImagePath(run.ID)
	source, err := a.Images.Produce(ctx, media.Request{
		Prompt: ai.ImagePrompt(run.Topic.Title),
		Title:  run.Topic.Title,
	}, run.ImagePath)
	if err != nil {
		return fmt.Errorf("produce image: %w", err)
	}
	run.ImageSource = source

	if err := a.Archive.Save(run); err != nil {
		return err
	}
	if a.Ledger != nil {
		if err := a.Ledger.CreateRun(ctx, models.NewRunRecord(run)); err != nil {
			a.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record run in ledger")
		}
	}

	if err := a.Notifier.SendPreview(ctx, run.ID, run.Topic.Title); err != nil {
		return err
	}
	return nil
}

// fail ends a run that stopped on err
func (a *Agent) fail(ctx context.Context, run *models.Run, err error) (*Report, error) {
	a.log.Error().Err(err).Str("run_id", run.ID).Msg("Run failed")
	report, finishErr := a.finish(ctx, run, models.Outcome{
		RunID:    run.ID,
		Approval: models.ApprovalPending,
		Reason:   models.ReasonError,
		Detail:   err.Error(),
	})
	return report, errors.Join(err, finishErr)
}

// finish persists the outcome and sends the summary. Bookkeeping failures
// are logged; only a failed summary is returned.
func (a *Agent) finish(ctx context.Context, run *models.Run, outcome models.Outcome) (*Report, error) {
	// the summary goes out even when the run was cancelled
	ctx = context.WithoutCancel(ctx)
	outcome.FinishedAt = a.Clock.Now()
	log := a.log.WithRunID(run.ID)

	if err := a.Archive.SaveOutcome(outcome); err != nil {
		log.Warn().Err(err).Msg("Failed to archive outcome")
	}
	if a.Ledger != nil {
		if err := a.Ledger.FinishRun(ctx, outcome); err != nil {
			log.Warn().Err(err).Msg("Failed to update ledger")
		}
	}
	if a.Tracker != nil {
		if err := a.Tracker.Record(ctx, tracker.Entry{Run: run, Outcome: outcome}); err != nil {
			log.Warn().Err(err).Msg("Failed to update tracker")
		}
	}

	report := &Report{Run: run, Outcome: outcome}
	err := a.Notifier.SendSummary(ctx, notify.Summary{
		RunID:  run.ID,
		Posted: outcome.Posted,
		Title:  run.Topic.Title,
		URL:    run.Topic.URL,
		Reason: outcome.Reason,
		Detail: outcome.Detail,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send summary")
		return report, err
	}

	log.Info().
		Bool("posted", outcome.Posted).
		Str("reason", string(outcome.Reason)).
		Msg("Run finished")
	return report, nil
}
