// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once at
// startup (or session start) and passed by reference into each component
// constructor; nothing mutates it after load.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Vision   VisionConfig   `mapstructure:"vision" yaml:"vision"`
	Evidence EvidenceConfig `mapstructure:"evidence" yaml:"evidence"`
	Sheet    SheetConfig    `mapstructure:"sheet" yaml:"sheet"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
}

// LoggerConfig controls the construction of the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // Megabytes before rotation.
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // Days.
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMConfig defines the connection to the decision model.
type LLMConfig struct {
	Endpoint             string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model                string        `mapstructure:"model" yaml:"model"`
	APIKey               string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout           time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature          float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP                 float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK                 int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens            int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	PromptCostPer1K      float64       `mapstructure:"prompt_cost_per_1k" yaml:"prompt_cost_per_1k"`
	CompletionCostPer1K  float64       `mapstructure:"completion_cost_per_1k" yaml:"completion_cost_per_1k"`
	JSONParsingRetry     int           `mapstructure:"json_parsing_retry" yaml:"json_parsing_retry"`
}

// ControlConfig drives control detection, merging and filtering.
type ControlConfig struct {
	Backend         string   `mapstructure:"backend" yaml:"backend"` // "structural", "vision" or "hybrid"
	ControlList     []string `mapstructure:"control_list" yaml:"control_list"`
	APIControlList  []string `mapstructure:"api_control_list" yaml:"api_control_list"`
	IOUThreshold    float64  `mapstructure:"iou_threshold_for_merge" yaml:"iou_threshold_for_merge"`
	FilterTypes     []string `mapstructure:"filter_types" yaml:"filter_types"` // Subset of {text, semantic, icon}.
	FilterTopKPlan  int      `mapstructure:"filter_top_k_plan" yaml:"filter_top_k_plan"`
	FilterTopKSem   int      `mapstructure:"filter_top_k_semantic" yaml:"filter_top_k_semantic"`
	FilterTopKIcon  int      `mapstructure:"filter_top_k_icon" yaml:"filter_top_k_icon"`
}

// VisionConfig tunes the pixel-based detector.
type VisionConfig struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint      string  `mapstructure:"endpoint" yaml:"endpoint"`
	BoxConfidence float64 `mapstructure:"box_confidence" yaml:"box_confidence"`
	IOUThreshold  float64 `mapstructure:"iou_threshold" yaml:"iou_threshold"` // De-dup threshold within the detector.
	ResizeTarget  int     `mapstructure:"resize_target" yaml:"resize_target"` // Longest-edge pixels sent to the model.
	OCREnabled    bool    `mapstructure:"ocr_enabled" yaml:"ocr_enabled"`
}

// EvidenceConfig toggles the optional artifacts captured per step.
type EvidenceConfig struct {
	IncludeLastScreenshot bool `mapstructure:"include_last_screenshot" yaml:"include_last_screenshot"`
	ConcatScreenshot      bool `mapstructure:"concat_screenshot" yaml:"concat_screenshot"`
	SaveUITree            bool `mapstructure:"save_ui_tree" yaml:"save_ui_tree"`
	SaveFullScreen        bool `mapstructure:"save_full_screen" yaml:"save_full_screen"`
	LogXML                bool `mapstructure:"log_xml" yaml:"log_xml"`
}

// SheetConfig holds the worksheet geometry fallbacks and cache policy.
type SheetConfig struct {
	LayoutCacheTTL    time.Duration `mapstructure:"layout_cache_ttl" yaml:"layout_cache_ttl"`
	DefaultLeft       int           `mapstructure:"default_left" yaml:"default_left"`
	DefaultTop        int           `mapstructure:"default_top" yaml:"default_top"`
	DefaultCellWidth  int           `mapstructure:"default_cell_width" yaml:"default_cell_width"`
	DefaultCellHeight int           `mapstructure:"default_cell_height" yaml:"default_cell_height"`
	CellControlTypes  []string      `mapstructure:"cell_control_types" yaml:"cell_control_types"`
}

// SessionConfig governs the outer session loop and durable sinks.
type SessionConfig struct {
	LogRoot        string        `mapstructure:"log_root" yaml:"log_root"`
	StorePath      string        `mapstructure:"store_path" yaml:"store_path"` // SQLite file; empty disables the store.
	MaxSteps       int           `mapstructure:"max_steps" yaml:"max_steps"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"` // Parallel sessions in batch mode.
	HistoryKeys    []string      `mapstructure:"history_keys" yaml:"history_keys"`
	ExperienceRAG  bool          `mapstructure:"experience_rag" yaml:"experience_rag"`
	DemonstrationRAG bool        `mapstructure:"demonstration_rag" yaml:"demonstration_rag"`
	RetrievalTopK  int           `mapstructure:"retrieval_top_k" yaml:"retrieval_top_k"`
}

// SetDefaults initializes default values for every recognized option.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot-cli")
	v.SetDefault("logger.log_file", "deskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.rate_limit_rps", 1.0)
	v.SetDefault("llm.json_parsing_retry", 3)

	// -- Control resolution --
	v.SetDefault("control.backend", "hybrid")
	v.SetDefault("control.control_list", []string{
		"Button", "Edit", "TabItem", "Document", "ListItem", "MenuItem",
		"ScrollBar", "TreeItem", "Hyperlink", "ComboBox", "RadioButton", "CheckBox",
	})
	v.SetDefault("control.api_control_list", []string{
		"Button", "Edit", "TabItem", "Document", "ListItem", "MenuItem",
		"TreeItem", "DataItem", "Header", "HeaderItem", "Pane", "Group",
	})
	v.SetDefault("control.iou_threshold_for_merge", 0.1)
	v.SetDefault("control.filter_types", []string{})
	v.SetDefault("control.filter_top_k_plan", 2)
	v.SetDefault("control.filter_top_k_semantic", 15)
	v.SetDefault("control.filter_top_k_icon", 15)

	// -- Vision detector --
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.box_confidence", 0.05)
	v.SetDefault("vision.iou_threshold", 0.1)
	v.SetDefault("vision.resize_target", 1280)
	v.SetDefault("vision.ocr_enabled", true)

	// -- Evidence --
	v.SetDefault("evidence.include_last_screenshot", true)
	v.SetDefault("evidence.concat_screenshot", false)
	v.SetDefault("evidence.save_ui_tree", false)
	v.SetDefault("evidence.save_full_screen", false)
	v.SetDefault("evidence.log_xml", false)

	// -- Worksheet geometry --
	v.SetDefault("sheet.layout_cache_ttl", "30s")
	v.SetDefault("sheet.default_left", 48)
	v.SetDefault("sheet.default_top", 201)
	v.SetDefault("sheet.default_cell_width", 72)
	v.SetDefault("sheet.default_cell_height", 21)
	v.SetDefault("sheet.cell_control_types", []string{"DataItem", "Cell"})

	// -- Session --
	v.SetDefault("session.log_root", "logs")
	v.SetDefault("session.store_path", "")
	v.SetDefault("session.max_steps", 50)
	v.SetDefault("session.timeout", "30m")
	v.SetDefault("session.concurrency", 1)
	v.SetDefault("session.history_keys", []string{"step", "subtask", "action_success", "status"})
	v.SetDefault("session.experience_rag", false)
	v.SetDefault("session.demonstration_rag", false)
	v.SetDefault("session.retrieval_top_k", 3)
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly rather than limp.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object that
// has already read its sources (file, env, flags).
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("llm.api_key", "DESKPILOT_LLM_API_KEY")

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
	if c.Control.IOUThreshold < 0 || c.Control.IOUThreshold > 1 {
		return fmt.Errorf("control.iou_threshold_for_merge must be within [0, 1]")
	}
	for _, ft := range c.Control.FilterTypes {
		switch ft {
		case "text", "semantic", "icon":
		default:
			return fmt.Errorf("control.filter_types contains unknown filter %q", ft)
		}
	}
	switch c.Control.Backend {
	case "structural", "vision", "hybrid":
	default:
		return fmt.Errorf("control.backend must be structural, vision or hybrid, got %q", c.Control.Backend)
	}
	if c.LLM.JSONParsingRetry < 0 {
		return fmt.Errorf("llm.json_parsing_retry must be non-negative")
	}
	if c.Session.MaxSteps <= 0 {
		return fmt.Errorf("session.max_steps must be a positive integer")
	}
	if c.Session.Concurrency <= 0 {
		return fmt.Errorf("session.concurrency must be a positive integer")
	}
	if c.Sheet.LayoutCacheTTL <= 0 {
		return fmt.Errorf("sheet.layout_cache_ttl must be positive")
	}
	return nil
}
