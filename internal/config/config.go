// Package config defines the application configuration, loaded through viper
// from defaults, an optional YAML file, and APPLYPILOT_* environment
// variables, with CLI flags bound on top by the cmd package.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object. Fields are exported so viper can
// unmarshal into them; access from the rest of the codebase is read-only by
// convention.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Stores  StoresConfig  `mapstructure:"stores" yaml:"stores"`
	Flow    FlowConfig    `mapstructure:"flow" yaml:"flow"`
	Walker  WalkerConfig  `mapstructure:"walker" yaml:"walker"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Scraper ScraperConfig `mapstructure:"scraper" yaml:"scraper"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the driven browser instance. One session
// per job; never concurrent.
type BrowserConfig struct {
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string `mapstructure:"args" yaml:"args"`
	// ElementWait is the default bounded wait for an element to appear.
	ElementWait time.Duration `mapstructure:"element_wait" yaml:"element_wait"`
	// InitialPageWait covers the heavier first page load after navigation.
	InitialPageWait   time.Duration `mapstructure:"initial_page_wait" yaml:"initial_page_wait"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// StoresConfig locates the two durable stores. Paths are fixed for the whole
// process lifetime.
type StoresConfig struct {
	AnswersFile string `mapstructure:"answers_file" yaml:"answers_file"`
	FlowsFile   string `mapstructure:"flows_file" yaml:"flows_file"`
}

// FlowConfig tunes the flow engine state machine.
type FlowConfig struct {
	// MaxSteps bounds one company flow; reaching it is a loggable outcome,
	// not an error.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// StepSettle is the pause after a completed step, letting the next page
	// render before it is inspected.
	StepSettle time.Duration `mapstructure:"step_settle" yaml:"step_settle"`
	// LoginSettle is the longer pause after submitting credentials.
	LoginSettle time.Duration `mapstructure:"login_settle" yaml:"login_settle"`
}

// WalkerConfig tunes the page walker. The counters are heuristics standing in
// for true DOM comprehension; exceeding either is a normal outcome.
type WalkerConfig struct {
	// MaxAdvances bounds focus advances in one walk, guarding against
	// pathological focus loops.
	MaxAdvances int `mapstructure:"max_advances" yaml:"max_advances"`
	// SkipBudget is the consecutive-skip threshold that ends a walk early
	// when focus order becomes unreliable.
	SkipBudget int `mapstructure:"skip_budget" yaml:"skip_budget"`
	// TerminalTexts is the submit-like vocabulary matched (case-insensitive
	// substring) against a focused button when no next-button selector is
	// configured.
	TerminalTexts []string `mapstructure:"terminal_texts" yaml:"terminal_texts"`
}

// QueueConfig locates the scraped-and-filtered CSV the job queue reads.
type QueueConfig struct {
	ScrapeDir string `mapstructure:"scrape_dir" yaml:"scrape_dir"`
	// FilePattern names filtered scrape outputs; {run} is the run number.
	FilePattern string `mapstructure:"file_pattern" yaml:"file_pattern"`
	// MarkerColumn is the hand-added CSV column whose MarkerValue rows are
	// queued for application.
	MarkerColumn string `mapstructure:"marker_column" yaml:"marker_column"`
	MarkerValue  string `mapstructure:"marker_value" yaml:"marker_value"`
}

// ScraperConfig tunes the listing scraper.
type ScraperConfig struct {
	CompaniesFile string `mapstructure:"companies_file" yaml:"companies_file"`
	OutputDir     string `mapstructure:"output_dir" yaml:"output_dir"`
	// MaxScrolls bounds the scroll-to-exhaustion loop per company.
	MaxScrolls int `mapstructure:"max_scrolls" yaml:"max_scrolls"`
	// RequestsPerSecond drives the politeness limiter between page actions.
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	PageTimeout       time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
}

// FilterConfig holds the keyword rules for the CSV title filter.
type FilterConfig struct {
	IncludeTerms []string `mapstructure:"include_terms" yaml:"include_terms"`
	OmitTerms    []string `mapstructure:"omit_terms" yaml:"omit_terms"`
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "applypilot")
	v.SetDefault("logger.log_file", "applypilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("browser.args", []string{"--no-sandbox", "--disable-dev-shm-usage", "--start-maximized"})
	v.SetDefault("browser.element_wait", 5*time.Second)
	v.SetDefault("browser.initial_page_wait", 20*time.Second)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)

	// -- Stores --
	v.SetDefault("stores.answers_file", "application_answers.json")
	v.SetDefault("stores.flows_file", "company_flows.json")

	// -- Flow engine --
	v.SetDefault("flow.max_steps", 20)
	v.SetDefault("flow.step_settle", 3*time.Second)
	v.SetDefault("flow.login_settle", 4*time.Second)

	// -- Page walker --
	v.SetDefault("walker.max_advances", 150)
	v.SetDefault("walker.skip_budget", 15)
	v.SetDefault("walker.terminal_texts", []string{"submit", "review", "apply"})

	// -- Queue --
	v.SetDefault("queue.scrape_dir", "scrapes")
	v.SetDefault("queue.file_pattern", "filtered_LinkedInJobs_Run{run}.csv")
	v.SetDefault("queue.marker_column", "Apply Status")
	v.SetDefault("queue.marker_value", "Apply")

	// -- Scraper --
	v.SetDefault("scraper.companies_file", "Companies.txt")
	v.SetDefault("scraper.output_dir", "scrapes")
	v.SetDefault("scraper.max_scrolls", 30)
	v.SetDefault("scraper.requests_per_second", 0.5)
	v.SetDefault("scraper.page_timeout", 60*time.Second)

	// -- Filter --
	v.SetDefault("filter.include_terms", []string{
		"Early", "Entry", "Associate", "New Grad", "Junior", "Trainee", "Graduate",
	})
	v.SetDefault("filter.omit_terms", []string{
		"II", "III", "IV", "senior", "sr", "lead", "director", "manager",
		"principal", "chief", "head", "vp", "vice president", "executive",
		"Intern", "Internship",
	})
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults must always validate; anything else is a programming error.
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Flow.MaxSteps <= 0 {
		return fmt.Errorf("flow.max_steps must be a positive integer")
	}
	if c.Walker.MaxAdvances <= 0 {
		return fmt.Errorf("walker.max_advances must be a positive integer")
	}
	if c.Walker.SkipBudget <= 0 {
		return fmt.Errorf("walker.skip_budget must be a positive integer")
	}
	if c.Stores.AnswersFile == "" || c.Stores.FlowsFile == "" {
		return fmt.Errorf("stores.answers_file and stores.flows_file are required")
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		return fmt.Errorf("scraper.requests_per_second must be positive")
	}
	return nil
}
