// Package app builds the bot's components from configuration. Both the CLI
// and the scheduler daemon go through it so they run the same workflow.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linkedin-autopost/internal/agent/autopost"
	"github.com/linkedin-autopost/internal/ai"
	"github.com/linkedin-autopost/internal/approval"
	"github.com/linkedin-autopost/internal/archive"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/linkedin"
	"github.com/linkedin-autopost/internal/mail"
	"github.com/linkedin-autopost/internal/media"
	"github.com/linkedin-autopost/internal/media/fallback"
	"github.com/linkedin-autopost/internal/media/nim"
	"github.com/linkedin-autopost/internal/media/unsplash"
	"github.com/linkedin-autopost/internal/notify"
	"github.com/linkedin-autopost/internal/preview"
	"github.com/linkedin-autopost/internal/runlock"
	"github.com/linkedin-autopost/internal/schedule"
	"github.com/linkedin-autopost/internal/source"
	"github.com/linkedin-autopost/internal/source/custom"
	"github.com/linkedin-autopost/internal/source/hackernews"
	"github.com/linkedin-autopost/internal/source/rss"
	"github.com/linkedin-autopost/internal/storage"
	"github.com/linkedin-autopost/internal/storage/sqlite"
	"github.com/linkedin-autopost/internal/tracker"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

// App holds the wired components
type App struct {
	Config    *config.Config
	Repo      storage.Repository
	Topics    *source.Selector
	Evergreen *custom.Source
	Archive   *archive.Store
	Preview   *preview.Server
	OAuth     *linkedin.OAuthManager
	LinkedIn  *linkedin.Client
	Agent     *autopost.Agent
	Lock      *runlock.Lock

	log *logger.Logger
}

// New opens the ledger and wires every component. Missing credentials are
// not an error here; the component that needs them reports it when used.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()
	clock := schedule.RealClock{}
	store := archive.NewStore(cfg.Archive.Dir, log)
	evergreen := custom.New(cfg.Sources.FallbackTopics, log)
	topics := newSelector(cfg, evergreen, limiter, log)

	oauth := linkedin.NewOAuthManager(cfg.LinkedIn, repo, log)
	client := linkedin.NewClient(cfg.LinkedIn, oauth, limiter, log)

	sender := mail.NewSMTPSender(cfg.Email, log)
	gate := approval.NewGate(mail.NewIMAPDialer(cfg.Email, log), clock, approval.Config{
		Window:       schedule.Window{Hour: cfg.Schedule.PostHour, Grace: cfg.Schedule.Grace()},
		PollInterval: cfg.Schedule.PollInterval(),
	}, log)

	deps := autopost.Deps{
		Clock:     clock,
		Topics:    topics,
		Text:      newGenerator(cfg.AI, limiter, log),
		Images:    newImageChain(cfg.Media, limiter, log),
		Archive:   store,
		Notifier:  notify.New(sender, cfg.Email.To, cfg.Preview.PublicURL, clock.Now, log),
		Approval:  gate,
		Publisher: client,
		Ledger:    repo,
	}

	sheets, err := tracker.NewSheetsTracker(ctx, cfg.Tracker, log)
	if err != nil {
		// the tracker is optional; a broken one must not stop posting
		log.Warn().Err(err).Msg("Sheets tracker disabled")
	} else if sheets != nil {
		if err := sheets.InitializeSheet(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracker sheet")
		}
		deps.Tracker = sheets
	}

	return &App{
		Config:    cfg,
		Repo:      repo,
		Topics:    topics,
		Evergreen: evergreen,
		Archive:   store,
		Preview:   preview.New(cfg.Preview, store, log),
		OAuth:     oauth,
		LinkedIn:  client,
		Agent:     autopost.NewAgent(deps, cfg.Schedule, log),
		Lock:      runlock.New(cfg.Archive.Dir),
		log:       log,
	}, nil
}

// Close releases the ledger
func (a *App) Close() error {
	return a.Repo.Close()
}

// RunOnce runs the workflow under the run lock
func (a *App) RunOnce(ctx context.Context) (*autopost.Report, error) {
	if err := a.Lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Lock.Release(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	start := time.Now()
	report, err := a.Agent.Run(ctx)
	a.log.Info().Dur("duration", time.Since(start)).Msg("Workflow complete")
	return report, err
}

// RunWithPreview serves previews for the duration of a single run. The
// server stops once the run returns.
func (a *App) RunWithPreview(ctx context.Context) (*autopost.Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		// previews are a convenience; the run goes on without them
		if err := a.Preview.Run(serveCtx); err != nil {
			a.log.Error().Err(err).Msg("Preview server failed")
		}
		return nil
	})

	var report *autopost.Report
	g.Go(func() error {
		defer stop()
		var err error
		report, err = a.RunOnce(gctx)
		return err
	})

	err := g.Wait()
	return report, err
}

// CheckSources health-checks the trending sources and the evergreen list
func (a *App) CheckSources(ctx context.Context) []source.Health {
	sources := append([]source.TopicSource(nil), a.Topics.GetSources()...)
	sources = append(sources, a.Evergreen)
	return source.Check(ctx, sources)
}

func newSelector(cfg *config.Config, evergreen *custom.Source, limiter *ratelimit.MultiLimiter, log *logger.Logger) *source.Selector {
	sel := source.NewSelector(evergreen.Topics(), log)
	switch cfg.Sources.Provider {
	case "rss":
		for _, src := range rss.NewMultiple(cfg.Sources.RSS, limiter, log) {
			sel.Register(src)
		}
	default:
		sel.Register(hackernews.New(cfg.Sources.HackerNews, limiter, log))
	}
	return sel
}

func newGenerator(cfg config.AIConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *ai.Generator {
	var provider ai.Provider
	if cfg.Provider == "anthropic" {
		provider = ai.NewAnthropicProvider(cfg, limiter, log)
	} else {
		provider = ai.NewGeminiProvider(cfg, limiter, log)
	}
	return ai.NewGenerator(provider, cfg.Keys(), log)
}

func newImageChain(cfg config.MediaConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *media.Chain {
	producers := []media.ImageProducer{nim.NewClient(cfg, limiter, log)}
	if cfg.UnsplashAPIKey != "" {
		producers = append(producers, unsplash.NewClient(cfg, limiter, log))
	}
	return media.NewChain(fallback.New(cfg.FontPath, cfg.FooterText, log), log, producers...)
}
