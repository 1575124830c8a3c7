package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration. It is loaded once at startup
// and handed to components by value; nothing reads the environment afterwards.
type Config struct {
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin" yaml:"linkedin"`
	Email     EmailConfig     `mapstructure:"email" yaml:"email"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Media     MediaConfig     `mapstructure:"media" yaml:"media"`
	Sources   SourcesConfig   `mapstructure:"sources" yaml:"sources"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Preview   PreviewConfig   `mapstructure:"preview" yaml:"preview"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Tracker   TrackerConfig   `mapstructure:"tracker" yaml:"tracker"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// LinkedInConfig holds LinkedIn API settings
type LinkedInConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
	// Token injection from environment (for headless deployment)
	AccessToken    string `mapstructure:"access_token" yaml:"access_token"`
	RefreshToken   string `mapstructure:"refresh_token" yaml:"refresh_token"`
	TokenExpiresAt string `mapstructure:"token_expires_at" yaml:"token_expires_at"`
	// PersonURN is the post author; resolved through /userinfo when empty
	PersonURN string `mapstructure:"person_urn" yaml:"person_urn"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
}

// EmailConfig holds SMTP/IMAP settings for preview, approval and summary mail
type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" yaml:"smtp_port"`
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort int    `mapstructure:"imap_port" yaml:"imap_port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	// To defaults to Username: the owner mails themself
	To      string `mapstructure:"to" yaml:"to"`
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// AIConfig holds text generation settings
type AIConfig struct {
	Provider       string   `mapstructure:"provider" yaml:"provider"` // gemini or anthropic
	GeminiKeys     []string `mapstructure:"gemini_keys" yaml:"gemini_keys"`
	GeminiModel    string   `mapstructure:"gemini_model" yaml:"gemini_model"`
	GeminiBaseURL  string   `mapstructure:"gemini_base_url" yaml:"gemini_base_url"`
	AnthropicKeys  []string `mapstructure:"anthropic_keys" yaml:"anthropic_keys"`
	AnthropicModel string   `mapstructure:"anthropic_model" yaml:"anthropic_model"`
	MaxTokens      int      `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Keys returns the credential list of the configured provider
func (c AIConfig) Keys() []string {
	if c.Provider == "anthropic" {
		return c.AnthropicKeys
	}
	return c.GeminiKeys
}

// MediaConfig holds image/media settings
type MediaConfig struct {
	NIMAPIKey      string `mapstructure:"nim_api_key" yaml:"nim_api_key"`
	NIMURL         string `mapstructure:"nim_url" yaml:"nim_url"`
	UnsplashAPIKey string `mapstructure:"unsplash_api_key" yaml:"unsplash_api_key"`
	UnsplashURL    string `mapstructure:"unsplash_url" yaml:"unsplash_url"`
	// FontPath is the preferred TrueType font for the local banner renderer
	FontPath       string `mapstructure:"font_path" yaml:"font_path"`
	FooterText     string `mapstructure:"footer_text" yaml:"footer_text"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// SourcesConfig holds trending-topic source settings
type SourcesConfig struct {
	Provider   string           `mapstructure:"provider" yaml:"provider"` // hackernews or rss
	HackerNews HackerNewsConfig `mapstructure:"hackernews" yaml:"hackernews"`
	RSS        RSSConfig        `mapstructure:"rss" yaml:"rss"`

	// FallbackTopics replaces the built-in evergreen list when set
	FallbackTopics []FallbackTopic `mapstructure:"fallback_topics" yaml:"fallback_topics"`
}

// FallbackTopic is an evergreen topic drawn when no trending source answers
type FallbackTopic struct {
	Title string `mapstructure:"title" yaml:"title"`
	URL   string `mapstructure:"url" yaml:"url"`
}

// HackerNewsConfig holds Hacker News API settings
type HackerNewsConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Limit   int    `mapstructure:"limit" yaml:"limit"`
}

// RSSConfig holds RSS feed settings
type RSSConfig struct {
	Feeds []RSSFeed `mapstructure:"feeds" yaml:"feeds"`
	Limit int       `mapstructure:"limit" yaml:"limit"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// ScheduleConfig holds the posting window
type ScheduleConfig struct {
	PostHour            int `mapstructure:"post_hour" yaml:"post_hour"`
	GraceMinutes        int `mapstructure:"grace_minutes" yaml:"grace_minutes"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// EarliestHour: runs started before this hour exit without doing anything
	EarliestHour int `mapstructure:"earliest_hour" yaml:"earliest_hour"`
}

// Grace returns the approval grace period
func (s ScheduleConfig) Grace() time.Duration {
	return time.Duration(s.GraceMinutes) * time.Minute
}

// PollInterval returns the inbox polling interval
func (s ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// SchedulerConfig holds daemon settings
type SchedulerConfig struct {
	RunCron string `mapstructure:"run_cron" yaml:"run_cron"`
}

// ArchiveConfig holds the run archive location
type ArchiveConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// PreviewConfig holds the local preview server settings
type PreviewConfig struct {
	Port      int    `mapstructure:"port" yaml:"port"`
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
}

// DatabaseConfig holds the run ledger connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// TrackerConfig holds Google Sheets tracker settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name" yaml:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file" yaml:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json" yaml:"service_account_json"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, console or auto
	Output string `mapstructure:"output" yaml:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkedin-autopost"))
		}
	}

	v.SetEnvPrefix("AUTOPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The bot has always been configured through these plain names
	bindings := map[string]string{
		"linkedin.access_token":        "LINKEDIN_ACCESS_TOKEN",
		"linkedin.refresh_token":       "LINKEDIN_REFRESH_TOKEN",
		"linkedin.token_expires_at":    "LINKEDIN_TOKEN_EXPIRES_AT",
		"linkedin.person_urn":          "LINKEDIN_PERSON_URN",
		"linkedin.client_id":           "LINKEDIN_CLIENT_ID",
		"linkedin.client_secret":       "LINKEDIN_CLIENT_SECRET",
		"email.smtp_host":              "EMAIL_SMTP",
		"email.smtp_port":              "EMAIL_SMTP_PORT",
		"email.imap_host":              "EMAIL_IMAP",
		"email.imap_port":              "EMAIL_IMAP_PORT",
		"email.username":               "EMAIL_USER",
		"email.password":               "EMAIL_PASS",
		"email.to":                     "EMAIL_TO",
		"ai.provider":                  "AI_PROVIDER",
		"ai.gemini_keys":               "GEMINI_KEYS",
		"ai.anthropic_keys":            "ANTHROPIC_KEYS",
		"media.nim_api_key":            "NVIDIA_API_KEY",
		"media.unsplash_api_key":       "UNSPLASH_API_KEY",
		"schedule.post_hour":           "POST_HOUR",
		"schedule.grace_minutes":       "POST_GRACE_MINUTES",
		"archive.dir":                  "ARCHIVE_DIR",
		"tracker.enabled":              "TRACKER_ENABLED",
		"tracker.spreadsheet_id":       "TRACKER_SPREADSHEET_ID",
		"tracker.service_account_json": "TRACKER_SERVICE_ACCOUNT_JSON",
		"tracker.credentials_file":     "TRACKER_CREDENTIALS_FILE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "AUTOPOST_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	// PORT is what most hosting platforms inject
	if err := v.BindEnv("preview.port", "AUTOPOST_PREVIEW_PORT", "PREVIEW_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("error binding PORT: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("linkedin.redirect_uri", "http://localhost:8000/callback")
	v.SetDefault("linkedin.scopes", []string{"openid", "profile", "email", "w_member_social"})
	v.SetDefault("linkedin.base_url", "https://api.linkedin.com/v2")

	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 465)
	v.SetDefault("email.imap_host", "imap.gmail.com")
	v.SetDefault("email.imap_port", 993)
	v.SetDefault("email.mailbox", "INBOX")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini_model", "gemini-2.5-flash")
	v.SetDefault("ai.anthropic_model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout_seconds", 60)

	v.SetDefault("media.nim_url", "https://ai.api.nvidia.com/v1/genai/stabilityai/stable-diffusion-3-medium")
	v.SetDefault("media.unsplash_url", "https://api.unsplash.com")
	v.SetDefault("media.font_path", "arial.ttf")
	v.SetDefault("media.footer_text", "Daily Tech Snapshot")
	v.SetDefault("media.timeout_seconds", 60)

	v.SetDefault("sources.provider", "hackernews")
	v.SetDefault("sources.hackernews.base_url", "https://hacker-news.firebaseio.com/v0")
	v.SetDefault("sources.hackernews.limit", 10)
	v.SetDefault("sources.rss.limit", 10)
	v.SetDefault("sources.rss.feeds", []map[string]string{
		{"name": "hnrss-frontpage", "url": "https://hnrss.org/frontpage"},
	})

	v.SetDefault("schedule.post_hour", 9)
	v.SetDefault("schedule.grace_minutes", 15)
	v.SetDefault("schedule.poll_interval_seconds", 30)
	v.SetDefault("schedule.earliest_hour", 6)

	v.SetDefault("scheduler.run_cron", "0 6 * * *") // generate at 6am, post at post_hour

	v.SetDefault("archive.dir", "./archive")

	v.SetDefault("preview.port", 5000)
	v.SetDefault("preview.public_url", "http://127.0.0.1:5000")

	v.SetDefault("database.dsn", "./data/autopost.db")

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Runs")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.output", "stdout")
}

// normalize trims comma-separated credential lists coming from the environment
func (c *Config) normalize() {
	c.AI.GeminiKeys = cleanList(c.AI.GeminiKeys)
	c.AI.AnthropicKeys = cleanList(c.AI.AnthropicKeys)
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.Sources.Provider = strings.ToLower(strings.TrimSpace(c.Sources.Provider))
	if c.Email.To == "" {
		c.Email.To = c.Email.Username
	}
	c.Preview.PublicURL = strings.TrimRight(c.Preview.PublicURL, "/")
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration. Missing credentials are not checked
// here: they are reported by the component that needs them, when it needs them.
func (c *Config) Validate() error {
	if c.Schedule.PostHour < 0 || c.Schedule.PostHour > 23 {
		return fmt.Errorf("schedule.post_hour must be 0-23, got %d", c.Schedule.PostHour)
	}
	if c.Schedule.EarliestHour < 0 || c.Schedule.EarliestHour > 23 {
		return fmt.Errorf("schedule.earliest_hour must be 0-23, got %d", c.Schedule.EarliestHour)
	}
	if c.Schedule.GraceMinutes < 0 {
		return fmt.Errorf("schedule.grace_minutes must not be negative")
	}
	if c.Schedule.PollIntervalSeconds <= 0 {
		return fmt.Errorf("schedule.poll_interval_seconds must be positive")
	}
	switch c.AI.Provider {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("ai.provider must be gemini or anthropic, got %q", c.AI.Provider)
	}
	switch c.Sources.Provider {
	case "hackernews", "rss":
	default:
		return fmt.Errorf("sources.provider must be hackernews or rss, got %q", c.Sources.Provider)
	}
	return nil
}
