package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linkedin-autopost/internal/app"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/storage"
	"github.com/linkedin-autopost/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autopost",
		Short: "Daily LinkedIn post bot with email approval",
		Long: `Picks a trending tech topic, writes a post and an image for it, mails
a preview and publishes to LinkedIn once the owner replies APPROVE <run_id>.`,
		PersistentPreRunE: initializeApp,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(oauthCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg, log)
}

// ============ RUN COMMANDS ============

func runCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run today's workflow once, serving previews while it runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var forced models.ContentMode
			if mode != "" {
				m, err := models.ParseContentMode(mode)
				if err != nil {
					return err
				}
				forced = m
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if forced != "" {
				a.Agent.ForceMode(forced)
			}

			report, err := a.RunWithPreview(ctx)
			if report != nil {
				printReport(report.Skipped, report.Run, report.Outcome)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Override today's content mode (article, meme, short, freestyle, none)")
	return cmd
}

func printReport(skipped string, run *models.Run, outcome models.Outcome) {
	fmt.Printf("\n=== Run Result ===\n")
	if skipped != "" {
		fmt.Printf("Skipped: %s\n", skipped)
		return
	}
	fmt.Printf("Run ID:  %s\n", run.ID)
	fmt.Printf("Title:   %s\n", run.Topic.Title)
	fmt.Printf("Mode:    %s\n", run.Mode)
	fmt.Printf("Image:   %s\n", run.ImageSource)
	fmt.Printf("Posted:  %t\n", outcome.Posted)
	fmt.Printf("Reason:  %s\n", outcome.Reason.Description())
	if outcome.PostURN != "" {
		fmt.Printf("Post:    %s\n", outcome.PostURN)
	}
	if outcome.Detail != "" {
		fmt.Printf("Detail:  %s\n", outcome.Detail)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve archived run previews",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Preview.Run(ctx)
		},
	}
}

// ============ SOURCES COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Topic source commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Health-check the configured topic sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.CheckSources(ctx)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Type", "Status"})
			failed := 0
			for _, r := range results {
				status := "OK"
				if r.Err != nil {
					status = r.Err.Error()
					failed++
				}
				t.AppendRow(table.Row{r.Name, r.Type, status})
			}
			t.Render()

			fmt.Printf("Evergreen fallback topics: %d\n", len(a.Evergreen.Topics()))
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(results))
			}
			return nil
		},
	})
	return cmd
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "LinkedIn OAuth management",
	}

	cmd.AddCommand(oauthLoginCmd())
	cmd.AddCommand(oauthStatusCmd())
	cmd.AddCommand(oauthExportCmd())
	return cmd
}

func oauthLoginCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start LinkedIn OAuth login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("Waiting for the callback on %s\n", cfg.LinkedIn.RedirectURI)
			token, err := a.OAuth.Login(ctx, func(authURL string) {
				fmt.Printf("\nPlease open this URL in your browser:\n%s\n", authURL)
			})
			if err != nil {
				return fmt.Errorf("OAuth failed: %w", err)
			}

			fmt.Println("\nAuthentication successful!")
			fmt.Printf("Expires at: %s\n", token.ExpiresAt.Format(time.RFC1123))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser callback")
	return cmd
}

func oauthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check OAuth token status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			valid, expiresAt, err := a.OAuth.TokenStatus(ctx)
			if err != nil {
				fmt.Println("Status: Not authenticated")
				fmt.Println("Run 'autopost oauth login' or set LINKEDIN_ACCESS_TOKEN")
				return nil
			}

			fmt.Printf("Status:     %s\n", map[bool]string{true: "Valid", false: "Expired"}[valid])
			fmt.Printf("Expires at: %s\n", expiresAt.Format(time.RFC1123))

			if !valid {
				fmt.Println("\nToken expired. Run 'autopost oauth login' to re-authenticate")
			}
			return nil
		},
	}
}

func oauthExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export OAuth token for environment variables (headless deployment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.Repo.GetToken(ctx, "linkedin")
			if err != nil {
				return fmt.Errorf("no token found - run 'oauth login' first: %w", err)
			}

			fmt.Println("# LinkedIn OAuth Token - Copy these to your environment variables:")
			fmt.Printf("LINKEDIN_ACCESS_TOKEN=%s\n", token.AccessToken)
			fmt.Printf("LINKEDIN_REFRESH_TOKEN=%s\n", token.RefreshToken)
			fmt.Printf("LINKEDIN_TOKEN_EXPIRES_AT=%s\n", token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the LinkedIn member posts are authored as",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			urn, err := a.LinkedIn.AuthorURN(ctx)
			if err != nil {
				return err
			}
			fmt.Println(urn)
			return nil
		},
	}
}

// ============ RUNS COMMANDS ============

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past runs",
	}

	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var reason string
	var posted string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.DefaultRunFilter()
			filter.Limit = limit
			if reason != "" {
				r := models.Reason(reason)
				filter.Reason = &r
			}
			switch posted {
			case "":
			case "yes", "true":
				p := true
				filter.Posted = &p
			case "no", "false":
				p := false
				filter.Posted = &p
			default:
				return fmt.Errorf("--posted must be yes or no, got %q", posted)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Repo.ListRuns(ctx, filter)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Run ID", "Mode", "Image", "Status", "Reason", "Title"})
			for _, r := range runs {
				status := "NOT POSTED"
				if r.Posted {
					status = "SUCCESS"
				}
				t.AppendRow(table.Row{r.RunID, r.Mode, r.ImageSource, status, r.Reason, truncate(r.Title, 60)})
			}
			t.AppendFooter(table.Row{"", "", "", "", "Total", len(runs)})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Filter by reason (published, publish_failed, approval_expired, inbox_unavailable, error)")
	cmd.Flags().StringVar(&posted, "posted", "", "Filter by posted (yes or no)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show the archived artifacts of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			art, err := a.Archive.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n=== %s ===\n", art.Meta.RunID)
			fmt.Printf("Title:   %s\n", art.Meta.Title)
			fmt.Printf("URL:     %s\n", art.Meta.URL)
			fmt.Printf("Mode:    %s\n", art.Meta.Mode)
			fmt.Printf("Image:   %s (%d bytes)\n", art.Meta.ImageSource, len(art.Image))
			fmt.Printf("Created: %s\n", art.Meta.CreatedAt.Format(time.RFC1123))

			if outcome, err := a.Archive.LoadOutcome(args[0]); err == nil {
				fmt.Printf("Posted:  %t (%s)\n", outcome.Posted, outcome.Reason)
			}

			fmt.Printf("\n%s\n", art.Text)
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// ============ CONFIG COMMANDS ============

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(redacted(*cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	return cmd
}

// redacted masks every credential in c
func redacted(c config.Config) config.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	maskAll := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			if len(s) > 4 {
				out[i] = "****" + s[len(s)-4:]
			} else {
				out[i] = mask(s)
			}
		}
		return out
	}

	c.LinkedIn.ClientSecret = mask(c.LinkedIn.ClientSecret)
	c.LinkedIn.AccessToken = mask(c.LinkedIn.AccessToken)
	c.LinkedIn.RefreshToken = mask(c.LinkedIn.RefreshToken)
	c.Email.Password = mask(c.Email.Password)
	c.AI.GeminiKeys = maskAll(c.AI.GeminiKeys)
	c.AI.AnthropicKeys = maskAll(c.AI.AnthropicKeys)
	c.Media.NIMAPIKey = mask(c.Media.NIMAPIKey)
	c.Media.UnsplashAPIKey = mask(c.Media.UnsplashAPIKey)
	c.Tracker.ServiceAccountJSON = mask(c.Tracker.ServiceAccountJSON)
	if strings.Contains(c.Database.DSN, "@") {
		c.Database.DSN = mask(c.Database.DSN)
	}
	return c
}
