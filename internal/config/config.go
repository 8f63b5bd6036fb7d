package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Input
	PDFPath  string `toml:"pdf_path" yaml:"pdf_path"`
	LogoPath string `toml:"logo_path" yaml:"logo_path"`

	// Output
	OutputDir string   `toml:"output_dir" yaml:"output_dir" validate:"required"`
	Exports   []string `toml:"exports" yaml:"exports" validate:"dive,oneof=json xlsx docx md"`
	DBPath    string   `toml:"db_path" yaml:"db_path"`

	// Extraction
	AllowedFormats       []string `toml:"allowed_formats" yaml:"allowed_formats" validate:"min=1,dive,required"`
	SkipPrefixes         []string `toml:"skip_prefixes" yaml:"skip_prefixes"`
	SkipContains         []string `toml:"skip_contains" yaml:"skip_contains"`
	PDFFallbackPdftotext bool     `toml:"pdf_fallback_pdftotext" yaml:"pdf_fallback_pdftotext"`

	// Enrichment
	SkipEnrich         bool     `toml:"skip_enrich" yaml:"skip_enrich"`
	CaptionProvider    string   `toml:"caption_provider" yaml:"caption_provider" validate:"omitempty,oneof=claude anthropic ollama"`
	CaptionModel       string   `toml:"caption_model" yaml:"caption_model"`
	CaptionBaseURL     string   `toml:"caption_base_url" yaml:"caption_base_url" validate:"omitempty,url"`
	AnthropicAPIKey    string   `toml:"-" yaml:"-"`
	CaptionConcurrency int      `toml:"caption_concurrency" yaml:"caption_concurrency" validate:"min=1,max=64"`
	CaptionRPS         float64  `toml:"caption_rps" yaml:"caption_rps" validate:"gte=0"`
	CaptionTimeout     Duration `toml:"caption_timeout" yaml:"caption_timeout"`

	// Server
	Port           string   `toml:"port" yaml:"port" validate:"required,numeric"`
	APIKey         string   `toml:"-" yaml:"-"`
	WorkerCount    int      `toml:"worker_count" yaml:"worker_count" validate:"min=1"`
	MaxQueueSize   int      `toml:"max_queue_size" yaml:"max_queue_size" validate:"min=1"`
	MaxUploadBytes int64    `toml:"max_upload_bytes" yaml:"max_upload_bytes" validate:"min=1"`
	JobTTL         Duration `toml:"job_ttl" yaml:"job_ttl"`
	DedupRuns      bool     `toml:"dedup_runs" yaml:"dedup_runs"`

	LogLevel string `toml:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		OutputDir:            "output",
		AllowedFormats:       []string{"png", "jpg", "jpeg", "jpe"},
		SkipPrefixes:         []string{"CLASS"},
		SkipContains:         []string{"SECTION"},
		PDFFallbackPdftotext: true,

		CaptionConcurrency: 2,
		CaptionRPS:         2,
		CaptionTimeout:     Duration(120 * time.Second),

		Port:           "8090",
		WorkerCount:    2,
		MaxQueueSize:   50,
		MaxUploadBytes: 52428800, // 50MB
		JobTTL:         Duration(1 * time.Hour),

		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the optional file at path
// (.toml, .yaml or .yml) and QUIZGEST_* environment variables, in that
// order, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.PDFPath = envOr("QUIZGEST_PDF", cfg.PDFPath)
	cfg.LogoPath = envOr("QUIZGEST_LOGO", cfg.LogoPath)
	cfg.OutputDir = envOr("QUIZGEST_OUTPUT_DIR", cfg.OutputDir)
	cfg.Exports = envList("QUIZGEST_EXPORTS", cfg.Exports)
	cfg.DBPath = envOr("QUIZGEST_DB", cfg.DBPath)

	cfg.AllowedFormats = envList("QUIZGEST_ALLOWED_FORMATS", cfg.AllowedFormats)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.SkipEnrich = envBool("QUIZGEST_SKIP_ENRICH", cfg.SkipEnrich)
	cfg.CaptionProvider = envOr("QUIZGEST_CAPTION_PROVIDER", cfg.CaptionProvider)
	cfg.CaptionModel = envOr("QUIZGEST_CAPTION_MODEL", cfg.CaptionModel)
	cfg.CaptionBaseURL = envOr("QUIZGEST_CAPTION_BASE_URL", cfg.CaptionBaseURL)
	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.CaptionConcurrency = envInt("QUIZGEST_CAPTION_CONCURRENCY", cfg.CaptionConcurrency)
	cfg.CaptionRPS = envFloat("QUIZGEST_CAPTION_RPS", cfg.CaptionRPS)
	cfg.CaptionTimeout = Duration(envDuration("QUIZGEST_CAPTION_TIMEOUT", cfg.CaptionTimeout.Std()))

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("QUIZGEST_API_KEY", cfg.APIKey)
	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = Duration(envDuration("JOB_TTL", cfg.JobTTL.Std()))
	cfg.DedupRuns = envBool("QUIZGEST_DEDUP_RUNS", cfg.DedupRuns)

	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", cfg.LogLevel))
}

var validate = validator.New()

// Validate checks field constraints and the rules that span fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("JOB_TTL must be positive")
	}
	if !c.SkipEnrich && isClaude(c.CaptionProvider) && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required for the claude caption provider")
	}
	return nil
}

// ValidateCLI additionally requires an input document.
func (c Config) ValidateCLI() error {
	if c.PDFPath == "" {
		return fmt.Errorf("a PDF path is required")
	}
	return c.Validate()
}

// ValidateServer additionally requires the API key clients must present.
func (c Config) ValidateServer() error {
	if c.APIKey == "" {
		return fmt.Errorf("QUIZGEST_API_KEY is required")
	}
	return c.Validate()
}

// EnrichEnabled reports whether captioning and synthesis should run.
func (c Config) EnrichEnabled() bool {
	return !c.SkipEnrich && c.CaptionProvider != ""
}

func (c Config) ImageDir() string      { return filepath.Join(c.OutputDir, "images") }
func (c Config) ContentPath() string   { return filepath.Join(c.OutputDir, "extracted_content.json") }
func (c Config) CaptionsPath() string  { return filepath.Join(c.OutputDir, "image_captions.json") }
func (c Config) GeneratedPath() string { return filepath.Join(c.OutputDir, "generated_questions.json") }

// RunDir is the output directory of one server-side run.
func (c Config) RunDir(runID string) string {
	return filepath.Join(c.OutputDir, "runs", runID)
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isClaude(provider string) bool {
	p := strings.ToLower(provider)
	return p == "claude" || p == "anthropic"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
