// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/scholar-citation-crawler/internal/challenge"
	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/enrich"
	"github.com/JakeFAU/scholar-citation-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/scholar-citation-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/scholar-citation-crawler/internal/headless"
	"github.com/JakeFAU/scholar-citation-crawler/internal/headless/detector"
	"github.com/JakeFAU/scholar-citation-crawler/internal/orchestrator"
	"github.com/JakeFAU/scholar-citation-crawler/internal/paginate"
)

// AppName names the XDG config directory and the env prefix.
const AppName = "citecrawler"

// Config captures every knob of a crawl run.
type Config struct {
	Scholar   ScholarConfig   `mapstructure:"scholar"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ScholarConfig describes the results interface.
type ScholarConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
	// Labels override the language table entry field by field.
	Labels         crawler.Labels `mapstructure:"labels"`
	ResultSelector string         `mapstructure:"result_selector"`
	TitleSelector  string         `mapstructure:"title_selector"`
}

// CrawlConfig holds the orchestrator's cadence, retry and timeout settings.
type CrawlConfig struct {
	BatchSize             int           `mapstructure:"batch_size"`
	Retries               int           `mapstructure:"retries"`
	RetryCooldown         time.Duration `mapstructure:"retry_cooldown"`
	ChallengeTimeout      time.Duration `mapstructure:"challenge_timeout"`
	ChallengePollInterval time.Duration `mapstructure:"challenge_poll_interval"`
	PageReadyTimeout      time.Duration `mapstructure:"page_ready_timeout"`
	PaginationTimeout     time.Duration `mapstructure:"pagination_timeout"`
	PaginationSettle      time.Duration `mapstructure:"pagination_settle"`
	MaxPages              int           `mapstructure:"max_pages"`
	BaseDelay             time.Duration `mapstructure:"base_delay"`
	JitterSpan            int           `mapstructure:"jitter_span"`
	BatchSurcharge        time.Duration `mapstructure:"batch_surcharge"`
	RecycleCooldown       time.Duration `mapstructure:"recycle_cooldown"`
}

// ChallengeConfig lists the verification-interstitial heuristics.
type ChallengeConfig struct {
	URLPatterns []string `mapstructure:"url_patterns"`
	Keywords    []string `mapstructure:"keywords"`
	Selectors   []string `mapstructure:"selectors"`
}

// BrowserConfig configures the Chrome session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// EnrichConfig configures the Crossref and doi.org lookups.
type EnrichConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CrossrefURL       string        `mapstructure:"crossref_url"`
	DOIURL            string        `mapstructure:"doi_url"`
	Attempts          int           `mapstructure:"attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Mailto            string        `mapstructure:"mailto"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// InputConfig locates the target list.
type InputConfig struct {
	Path   string `mapstructure:"path"`
	Column string `mapstructure:"column"`
}

// OutputConfig names the local artifacts.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Workbook string `mapstructure:"workbook"`
	BibTeX   string `mapstructure:"bibtex"`
	Report   string `mapstructure:"report"`
	// Progress draws the terminal progress bar on stderr.
	Progress bool `mapstructure:"progress"`
}

// StorageConfig enables the GCS artifact mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig enables the checkpoint mirrors.
type DBConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// PubSubConfig enables checkpoint notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status API. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Dir returns the per-user config directory searched by Load.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load builds a Config from defaults, an optional file and CITECRAWLER_*
// environment variables. With an empty path, config.yaml is looked up in the
// working directory and then in Dir(); a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scholar.base_url", "https://scholar.google.com")
	v.SetDefault("scholar.language", "en")
	v.SetDefault("scholar.labels.cited_by", "")
	v.SetDefault("scholar.labels.more", "")
	v.SetDefault("scholar.result_selector", ".gs_ri")
	v.SetDefault("scholar.title_selector", ".gs_rt")

	v.SetDefault("crawl.batch_size", 5)
	v.SetDefault("crawl.retries", 1)
	v.SetDefault("crawl.retry_cooldown", "5s")
	v.SetDefault("crawl.challenge_timeout", "120s")
	v.SetDefault("crawl.challenge_poll_interval", "2s")
	v.SetDefault("crawl.page_ready_timeout", "10s")
	v.SetDefault("crawl.pagination_timeout", "5s")
	v.SetDefault("crawl.pagination_settle", "2s")
	v.SetDefault("crawl.max_pages", 500)
	v.SetDefault("crawl.base_delay", "8s")
	v.SetDefault("crawl.jitter_span", 5)
	v.SetDefault("crawl.batch_surcharge", "5s")
	v.SetDefault("crawl.recycle_cooldown", "10s")

	v.SetDefault("challenge.url_patterns", []string{"sorry/index"})
	v.SetDefault("challenge.keywords", []string{"captcha"})
	v.SetDefault("challenge.selectors", []string{"#gs_captcha_ccl", "#captcha-form"})

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)

	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.crossref_url", "https://api.crossref.org/works")
	v.SetDefault("enrich.doi_url", "https://doi.org")
	v.SetDefault("enrich.attempts", 3)
	v.SetDefault("enrich.retry_delay", "5s")
	v.SetDefault("enrich.timeout", "30s")
	v.SetDefault("enrich.requests_per_second", 1.0)
	v.SetDefault("enrich.mailto", "")
	v.SetDefault("enrich.user_agent", "citecrawler/1.0 (+https://github.com/JakeFAU/scholar-citation-crawler)")

	v.SetDefault("input.path", "article_template.xlsx")
	v.SetDefault("input.column", "Article Title")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.workbook", "citation_data.xlsx")
	v.SetDefault("output.bibtex", "citations.bibtex")
	v.SetDefault("output.report", "report.md")
	v.SetDefault("output.progress", true)

	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("db.postgres_dsn", "")
	v.SetDefault("db.table", "citation_checkpoints")
	v.SetDefault("db.sqlite_path", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "citecrawler-checkpoints")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and sane limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Scholar.BaseURL) == "" {
		return fmt.Errorf("scholar.base_url is required")
	}
	if _, err := c.Labels(); err != nil {
		return fmt.Errorf("scholar.language: %w", err)
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.Retries < 0 {
		return fmt.Errorf("crawl.retries must be >= 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.JitterSpan <= 0 {
		return fmt.Errorf("crawl.jitter_span must be > 0")
	}
	if c.Crawl.ChallengeTimeout <= 0 || c.Crawl.PageReadyTimeout <= 0 || c.Crawl.PaginationTimeout <= 0 {
		return fmt.Errorf("crawl timeouts must be > 0")
	}
	if c.Enrich.Enabled && c.Enrich.Attempts <= 0 {
		return fmt.Errorf("enrich.attempts must be > 0 when enrichment is enabled")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 0-65535")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is")
	}
	return nil
}

// Labels resolves the language table and applies explicit overrides.
func (c Config) Labels() (crawler.Labels, error) {
	base, err := crawler.LabelsFor(c.Scholar.Language)
	if err != nil {
		return crawler.Labels{}, err
	}
	return c.Scholar.Labels.Merge(base), nil
}

// OrchestratorConfig maps the crawl section onto the orchestrator. Load
// already applied the defaults, so an explicit zero pause stays zero.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		BaseURL:          c.Scholar.BaseURL,
		Language:         c.Scholar.Language,
		ResultSelector:   c.Scholar.ResultSelector,
		BatchSize:        c.Crawl.BatchSize,
		Retries:          c.Crawl.Retries,
		RetryCooldown:    pause(c.Crawl.RetryCooldown),
		PageReadyTimeout: c.Crawl.PageReadyTimeout,
		BaseDelay:        pause(c.Crawl.BaseDelay),
		JitterSpan:       c.Crawl.JitterSpan,
		BatchSurcharge:   pause(c.Crawl.BatchSurcharge),
	}
}

// pause maps a configured zero onto the orchestrator's "disabled" value.
func pause(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// WalkerConfig maps the pagination settings.
func (c Config) WalkerConfig(labels crawler.Labels) paginate.Config {
	return paginate.Config{
		ResultSelector: c.Scholar.ResultSelector,
		MoreLabel:      labels.More,
		ReadyTimeout:   c.Crawl.PageReadyTimeout,
		ClickTimeout:   c.Crawl.PaginationTimeout,
		Settle:         c.Crawl.PaginationSettle,
		MaxPages:       c.Crawl.MaxPages,
	}
}

// ExtractConfig maps the selectors and the cited-by label.
func (c Config) ExtractConfig(labels crawler.Labels) extract.Config {
	return extract.Config{
		ResultSelector: c.Scholar.ResultSelector,
		TitleSelector:  c.Scholar.TitleSelector,
		CitedByLabel:   labels.CitedBy,
	}
}

// ChallengeHandlerConfig maps the challenge wait bounds.
func (c Config) ChallengeHandlerConfig() challenge.Config {
	return challenge.Config{
		Timeout:      c.Crawl.ChallengeTimeout,
		PollInterval: c.Crawl.ChallengePollInterval,
	}
}

// DetectorConfig maps the challenge heuristics.
func (c Config) DetectorConfig() detector.Config {
	return detector.Config{
		URLPatterns: c.Challenge.URLPatterns,
		Keywords:    c.Challenge.Keywords,
		Selectors:   c.Challenge.Selectors,
	}
}

// HeadlessConfig maps the browser section.
func (c Config) HeadlessConfig() headless.Config {
	return headless.Config{
		Headless:          c.Browser.Headless,
		UserAgent:         c.Browser.UserAgent,
		ExecPath:          c.Browser.ExecPath,
		NavigationTimeout: c.Browser.NavigationTimeout,
		WindowWidth:       c.Browser.WindowWidth,
		WindowHeight:      c.Browser.WindowHeight,
	}
}

// EnrichClientConfig maps the lookup client settings.
func (c Config) EnrichClientConfig() enrich.Config {
	return enrich.Config{
		CrossrefURL:       c.Enrich.CrossrefURL,
		DOIURL:            c.Enrich.DOIURL,
		Attempts:          c.Enrich.Attempts,
		RetryDelay:        c.Enrich.RetryDelay,
		RequestsPerSecond: c.Enrich.RequestsPerSecond,
		Mailto:            c.Enrich.Mailto,
	}
}

// FetcherConfig maps the HTTP settings used by enrichment.
func (c Config) FetcherConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent: c.Enrich.UserAgent,
		Timeout:   c.Enrich.Timeout,
	}
}
