// Package config loads studiopilot's settings from defaults, an optional
// YAML file and STUDIOPILOT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/engine"
	"github.com/v0xg/studiopilot/internal/extract"
	"github.com/v0xg/studiopilot/internal/notebook"
	"github.com/v0xg/studiopilot/internal/record"
	"github.com/v0xg/studiopilot/internal/studio"
)

// EnvPrefix prefixes every environment override, e.g. STUDIOPILOT_BROWSER_HEADLESS.
const EnvPrefix = "STUDIOPILOT"

// Config is the root configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Timing      TimingConfig      `mapstructure:"timing" yaml:"timing"`
	Extract     ExtractConfig     `mapstructure:"extract" yaml:"extract"`
	Studio      StudioConfig      `mapstructure:"studio" yaml:"studio"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`
	Advisor     AdvisorConfig     `mapstructure:"advisor" yaml:"advisor"`
	Record      RecordConfig      `mapstructure:"record" yaml:"record"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig holds the browser session settings.
type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
	ProfileDir  string `mapstructure:"profile_dir" yaml:"profile_dir"`
	ControlURL  string `mapstructure:"control_url" yaml:"control_url"`
	URL         string `mapstructure:"url" yaml:"url"`
	Width       int    `mapstructure:"width" yaml:"width"`
	Height      int    `mapstructure:"height" yaml:"height"`
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`
}

// TimingConfig holds every wait and retry bound.
type TimingConfig struct {
	ResolveBudget     time.Duration `mapstructure:"resolve_budget" yaml:"resolve_budget"`
	MinStrategyBudget time.Duration `mapstructure:"min_strategy_budget" yaml:"min_strategy_budget"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
	StaleRetries      int           `mapstructure:"stale_retries" yaml:"stale_retries"`
	ChunkSize         int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkPause        time.Duration `mapstructure:"chunk_pause" yaml:"chunk_pause"`
	AdvisorTimeout    time.Duration `mapstructure:"advisor_timeout" yaml:"advisor_timeout"`
	OptionalBudget    time.Duration `mapstructure:"optional_budget" yaml:"optional_budget"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	ResponsePoll      time.Duration `mapstructure:"response_poll" yaml:"response_poll"`
	UploadTimeout     time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
	ManualTimeout     time.Duration `mapstructure:"manual_timeout" yaml:"manual_timeout"`
	CreateTimeout     time.Duration `mapstructure:"create_timeout" yaml:"create_timeout"`
	GenerationWait    time.Duration `mapstructure:"generation_wait" yaml:"generation_wait"`
	SelectDelay       time.Duration `mapstructure:"select_delay" yaml:"select_delay"`
	DialogDelay       time.Duration `mapstructure:"dialog_delay" yaml:"dialog_delay"`
	MaterialDelay     time.Duration `mapstructure:"material_delay" yaml:"material_delay"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
}

// ExtractConfig holds the answer filters. They are pinned to the current UI
// of the target application.
type ExtractConfig struct {
	MinLength  int      `mapstructure:"min_length" yaml:"min_length"`
	MaxLength  int      `mapstructure:"max_length" yaml:"max_length"`
	EchoPrefix int      `mapstructure:"echo_prefix" yaml:"echo_prefix"`
	DenyWindow int      `mapstructure:"deny_window" yaml:"deny_window"`
	DenyList   []string `mapstructure:"deny_list" yaml:"deny_list"`
}

// StudioConfig configures material generation.
type StudioConfig struct {
	Language          string   `mapstructure:"language" yaml:"language"`
	Materials         []string `mapstructure:"materials" yaml:"materials"`
	LanguageRequired  []string `mapstructure:"language_required" yaml:"language_required"`
	SelectAllLabels   []string `mapstructure:"select_all_labels" yaml:"select_all_labels"`
	GeneratingMarkers []string `mapstructure:"generating_markers" yaml:"generating_markers"`
	ListboxScrolls    int      `mapstructure:"listbox_scrolls" yaml:"listbox_scrolls"`
}

// DiagnosticsConfig configures failure captures.
type DiagnosticsConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`
	ThumbnailWidth int    `mapstructure:"thumbnail_width" yaml:"thumbnail_width"`
}

// CatalogConfig points at an optional catalog override file.
type CatalogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// AdvisorConfig configures the selector advisor.
type AdvisorConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"-"`
}

// RecordConfig configures the run recorder. An empty Output disables it.
type RecordConfig struct {
	Output    string `mapstructure:"output" yaml:"output"`
	FPS       int    `mapstructure:"fps" yaml:"fps"`
	MaxWidth  int    `mapstructure:"max_width" yaml:"max_width"`
	MaxFrames int    `mapstructure:"max_frames" yaml:"max_frames"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "studiopilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.url", "https://notebooklm.google.com/")
	v.SetDefault("browser.width", 1440)
	v.SetDefault("browser.height", 900)
	v.SetDefault("browser.download_dir", "downloads")

	// -- Timing --
	v.SetDefault("timing.resolve_budget", "10s")
	v.SetDefault("timing.min_strategy_budget", "1s")
	v.SetDefault("timing.poll_interval", "250ms")
	v.SetDefault("timing.settle", "300ms")
	v.SetDefault("timing.stale_retries", 2)
	v.SetDefault("timing.chunk_size", 5000)
	v.SetDefault("timing.chunk_pause", "500ms")
	v.SetDefault("timing.advisor_timeout", "30s")
	v.SetDefault("timing.optional_budget", "3s")
	v.SetDefault("timing.response_timeout", "120s")
	v.SetDefault("timing.response_poll", "1s")
	v.SetDefault("timing.upload_timeout", "60s")
	v.SetDefault("timing.manual_timeout", "120s")
	v.SetDefault("timing.create_timeout", "30s")
	v.SetDefault("timing.generation_wait", "5m")
	v.SetDefault("timing.select_delay", "1s")
	v.SetDefault("timing.dialog_delay", "2s")
	v.SetDefault("timing.material_delay", "2s")
	v.SetDefault("timing.download_timeout", "2m")

	// -- Extract --
	v.SetDefault("extract.min_length", 50)
	v.SetDefault("extract.max_length", 10000)
	v.SetDefault("extract.echo_prefix", 50)
	v.SetDefault("extract.deny_window", 200)
	v.SetDefault("extract.deny_list", []string{
		"Quellen hinzufügen",
		"Add source",
		"Notebook guide",
		"Notizbuchleitfaden",
		"Audio Overview",
		"Audio-Zusammenfassung",
		"Saved notes",
		"Gespeicherte Notizen",
		"Save to note",
		"In Notiz speichern",
		"NotebookLM can be inaccurate",
		"NotebookLM kann ungenaue",
	})

	// -- Studio --
	v.SetDefault("studio.language", "English")
	v.SetDefault("studio.materials", []string{})
	v.SetDefault("studio.language_required", []string{"audio", "video", "infographic"})
	v.SetDefault("studio.select_all_labels", []string{"alle quellen", "select all", "all sources"})
	v.SetDefault("studio.generating_markers", []string{"wird erstellt", "kommen sie in", "generating", "come back in"})
	v.SetDefault("studio.listbox_scrolls", 8)

	// -- Diagnostics --
	v.SetDefault("diagnostics.dir", "debug_screenshots")
	v.SetDefault("diagnostics.thumbnail_width", 320)

	// -- Catalog --
	v.SetDefault("catalog.file", "")

	// -- Advisor --
	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.provider", "claude")
	v.SetDefault("advisor.model", "")
	v.SetDefault("advisor.api_key", "")

	// -- Record --
	v.SetDefault("record.output", "")
	v.SetDefault("record.fps", 10)
	v.SetDefault("record.max_width", 800)
	v.SetDefault("record.max_frames", 200)
}

// Load reads defaults, then the YAML file at path when given, then
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a configuration from a prepared viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Timing.ResolveBudget <= 0 {
		return fmt.Errorf("timing.resolve_budget must be positive")
	}
	if c.Timing.PollInterval <= 0 {
		return fmt.Errorf("timing.poll_interval must be positive")
	}
	if c.Timing.StaleRetries < 0 {
		return fmt.Errorf("timing.stale_retries must not be negative")
	}
	if c.Timing.ChunkSize <= 0 {
		return fmt.Errorf("timing.chunk_size must be positive")
	}
	if c.Extract.MinLength < 0 || (c.Extract.MaxLength > 0 && c.Extract.MaxLength < c.Extract.MinLength) {
		return fmt.Errorf("extract.min_length/max_length window is empty")
	}
	if _, err := studio.ParseMaterials(c.Studio.Materials); err != nil {
		return fmt.Errorf("studio.materials: %w", err)
	}
	if _, err := studio.ParseMaterials(c.Studio.LanguageRequired); err != nil {
		return fmt.Errorf("studio.language_required: %w", err)
	}
	if c.Advisor.Enabled && c.Advisor.Provider == "" {
		return fmt.Errorf("advisor.provider is required when the advisor is enabled")
	}
	return nil
}

// EngineTiming returns the resolver and executor timing.
func (c *Config) EngineTiming() engine.Timing {
	return engine.Timing{
		Budget:         c.Timing.ResolveBudget,
		MinSlice:       c.Timing.MinStrategyBudget,
		Interval:       c.Timing.PollInterval,
		Settle:         c.Timing.Settle,
		StaleRetries:   c.Timing.StaleRetries,
		ChunkSize:      c.Timing.ChunkSize,
		ChunkPause:     c.Timing.ChunkPause,
		AdvisorTimeout: c.Timing.AdvisorTimeout,
	}
}

// BrowserOptions returns the session launch options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:   c.Browser.Headless,
		ProfileDir: c.Browser.ProfileDir,
		ControlURL: c.Browser.ControlURL,
		URL:        c.Browser.URL,
		Width:      c.Browser.Width,
		Height:     c.Browser.Height,
	}
}

// ExtractorConfig returns the answer filters.
func (c *Config) ExtractorConfig() extract.Config {
	return extract.Config{
		MinLength:  c.Extract.MinLength,
		MaxLength:  c.Extract.MaxLength,
		EchoPrefix: c.Extract.EchoPrefix,
		DenyWindow: c.Extract.DenyWindow,
		DenyList:   append([]string(nil), c.Extract.DenyList...),
	}
}

// NotebookConfig returns the chat and source waits.
func (c *Config) NotebookConfig() notebook.Config {
	return notebook.Config{
		ResponseTimeout: c.Timing.ResponseTimeout,
		UploadTimeout:   c.Timing.UploadTimeout,
		ManualTimeout:   c.Timing.ManualTimeout,
		CreateTimeout:   c.Timing.CreateTimeout,
		PollInterval:    c.Timing.ResponsePoll,
		OptionalBudget:  c.Timing.OptionalBudget,
	}
}

// StudioConfig returns the orchestrator settings. Validate has already
// checked the material names.
func (c *Config) StudioConfig() studio.Config {
	lang, _ := studio.ParseMaterials(c.Studio.LanguageRequired)
	if len(c.Studio.LanguageRequired) == 0 {
		lang = nil
	}
	cfg := studio.DefaultConfig()
	cfg.Language = c.Studio.Language
	cfg.LanguageRequired = lang
	cfg.SelectAllLabels = append([]string(nil), c.Studio.SelectAllLabels...)
	cfg.GeneratingMarkers = append([]string(nil), c.Studio.GeneratingMarkers...)
	cfg.ListboxScrolls = c.Studio.ListboxScrolls
	cfg.OptionalBudget = c.Timing.OptionalBudget
	cfg.SelectDelay = c.Timing.SelectDelay
	cfg.DialogDelay = c.Timing.DialogDelay
	cfg.MaterialDelay = c.Timing.MaterialDelay
	cfg.DownloadTimeout = c.Timing.DownloadTimeout
	return cfg
}

// Materials returns the configured material types; none configured means all.
func (c *Config) Materials() ([]studio.MaterialType, error) {
	return studio.ParseMaterials(c.Studio.Materials)
}

// RecordOptions returns the recorder settings.
func (c *Config) RecordOptions() record.Options {
	opts := record.DefaultOptions()
	opts.FPS = c.Record.FPS
	if c.Record.MaxWidth > 0 {
		opts.MaxWidth = uint(c.Record.MaxWidth)
	}
	opts.MaxFrames = c.Record.MaxFrames
	return opts
}
