package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Splitter   SplitterConfig   `yaml:"splitter"`
	Matching   MatchingConfig   `yaml:"matching"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	MailSource MailSourceConfig `yaml:"mailsource"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the status/health HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host, honoring SERVER_HOST and container runtimes.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the optional Redis connection. When URL is empty the
// rate limiter stays in-process and batch locking uses Postgres.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// OracleConfig holds inference oracle settings
type OracleConfig struct {
	Provider          string `yaml:"provider"` // openai | bedrock | gemini
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	Region            string `yaml:"region"`
	MaxTokens         int    `yaml:"max_tokens"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxRetries        int    `yaml:"max_retries"`
	CallsPerWindow    int    `yaml:"calls_per_window"`
	WindowSeconds     int    `yaml:"window_seconds"`
	DistributedBudget bool   `yaml:"distributed_budget"`
}

// Timeout returns the per-call timeout.
func (c OracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Window returns the sliding rate-limit window.
func (c OracleConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// ExtractionConfig holds the extraction ladder settings
type ExtractionConfig struct {
	AlternateCommand string   `yaml:"alternate_command"`
	AlternateArgs    []string `yaml:"alternate_args"`
	OCRBinary        string   `yaml:"ocr_binary"`
	RasterizeBinary  string   `yaml:"rasterize_binary"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MinTextChars     int      `yaml:"min_text_chars"`
}

// Timeout returns the bound applied to each extraction subprocess.
func (c ExtractionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SplitterConfig holds multi-document detection thresholds
type SplitterConfig struct {
	PageThreshold int  `yaml:"page_threshold"`
	ProbePages    int  `yaml:"probe_pages"`
	UseOracle     bool `yaml:"use_oracle"`
}

// MatchingConfig holds the tunable confidence constants of the matcher
type MatchingConfig struct {
	AutoMatchThreshold   float64 `yaml:"auto_match_threshold"`
	MLSConfidence        float64 `yaml:"mls_confidence"`
	LoanConfidence       float64 `yaml:"loan_confidence"`
	ExactAddressConf     float64 `yaml:"exact_address_confidence"`
	ExactClientNameConf  float64 `yaml:"exact_client_name_confidence"`
	FuzzyNameCeiling     float64 `yaml:"fuzzy_name_ceiling"`
	FuzzyAddressCeiling  float64 `yaml:"fuzzy_address_ceiling"`
	CombinedSignalsConf  float64 `yaml:"combined_signals_confidence"`
	MinSimilarity        float64 `yaml:"min_similarity"`
	MaxAlternates        int     `yaml:"max_alternates"`
	SimilarityCandidates int     `yaml:"similarity_candidates"`
}

// PipelineConfig holds batch runner settings
type PipelineConfig struct {
	BatchSize           int     `yaml:"batch_size"`
	Workers             int     `yaml:"workers"`
	EmailsPerSecond     float64 `yaml:"emails_per_second"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	LockTTLSeconds      int     `yaml:"lock_ttl_seconds"`
	AttachmentWorkers   int     `yaml:"attachment_workers"`
}

// PollInterval returns the delay between batches in serve mode.
func (c PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LockTTL returns the batch lock lifetime.
func (c PipelineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// MailSourceConfig holds the mail source settings
type MailSourceConfig struct {
	SpoolDir string `yaml:"spool_dir"`
}

// ArchiveConfig holds raw attachment archive settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default filled in, for runs
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}

	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "openai"
	}
	if cfg.Oracle.BaseURL == "" && cfg.Oracle.Provider == "openai" {
		cfg.Oracle.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Oracle.Model == "" {
		switch cfg.Oracle.Provider {
		case "bedrock":
			cfg.Oracle.Model = "anthropic.claude-3-haiku-20240307-v1:0"
		case "gemini":
			cfg.Oracle.Model = "gemini-2.0-flash"
		default:
			cfg.Oracle.Model = "gpt-4o-mini"
		}
	}
	if cfg.Oracle.Region == "" {
		cfg.Oracle.Region = "us-east-1"
	}
	if cfg.Oracle.MaxTokens == 0 {
		cfg.Oracle.MaxTokens = 2048
	}
	if cfg.Oracle.TimeoutSeconds == 0 {
		cfg.Oracle.TimeoutSeconds = 45
	}
	if cfg.Oracle.MaxRetries == 0 {
		cfg.Oracle.MaxRetries = 2
	}
	if cfg.Oracle.CallsPerWindow == 0 {
		cfg.Oracle.CallsPerWindow = 5
	}
	if cfg.Oracle.WindowSeconds == 0 {
		cfg.Oracle.WindowSeconds = 60
	}

	if cfg.Extraction.AlternateCommand == "" {
		cfg.Extraction.AlternateCommand = "python3"
		if len(cfg.Extraction.AlternateArgs) == 0 {
			cfg.Extraction.AlternateArgs = []string{"scripts/pdf_plumber_extractor.py"}
		}
	}
	if cfg.Extraction.OCRBinary == "" {
		cfg.Extraction.OCRBinary = "tesseract"
	}
	if cfg.Extraction.RasterizeBinary == "" {
		cfg.Extraction.RasterizeBinary = "pdftoppm"
	}
	if cfg.Extraction.TimeoutSeconds == 0 {
		cfg.Extraction.TimeoutSeconds = 60
	}
	if cfg.Extraction.MinTextChars == 0 {
		cfg.Extraction.MinTextChars = 20
	}

	if cfg.Splitter.PageThreshold == 0 {
		cfg.Splitter.PageThreshold = 15
	}
	if cfg.Splitter.ProbePages == 0 {
		cfg.Splitter.ProbePages = 3
	}

	m := &cfg.Matching
	setFloat(&m.AutoMatchThreshold, 0.75)
	setFloat(&m.MLSConfidence, 0.99)
	setFloat(&m.LoanConfidence, 0.97)
	setFloat(&m.ExactAddressConf, 0.95)
	setFloat(&m.ExactClientNameConf, 0.85)
	setFloat(&m.FuzzyNameCeiling, 0.7)
	setFloat(&m.FuzzyAddressCeiling, 0.6)
	setFloat(&m.CombinedSignalsConf, 0.65)
	setFloat(&m.MinSimilarity, 0.3)
	if m.MaxAlternates == 0 {
		m.MaxAlternates = 5
	}
	if m.SimilarityCandidates == 0 {
		m.SimilarityCandidates = 10
	}

	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 25
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.EmailsPerSecond == 0 {
		cfg.Pipeline.EmailsPerSecond = 2
	}
	if cfg.Pipeline.PollIntervalSeconds == 0 {
		cfg.Pipeline.PollIntervalSeconds = 60
	}
	if cfg.Pipeline.LockTTLSeconds == 0 {
		cfg.Pipeline.LockTTLSeconds = 600
	}
	if cfg.Pipeline.AttachmentWorkers == 0 {
		cfg.Pipeline.AttachmentWorkers = 3
	}

	if cfg.MailSource.SpoolDir == "" {
		cfg.MailSource.SpoolDir = "./spool"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "attachments"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = cfg.Oracle.Region
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.RedactPII == nil {
		on := true
		cfg.Logging.RedactPII = &on
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment. An empty path
// starts from Default().
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ORACLE_PROVIDER"); v != "" {
		cfg.Oracle.Provider = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	switch {
	case os.Getenv("ORACLE_API_KEY") != "":
		cfg.Oracle.APIKey = os.Getenv("ORACLE_API_KEY")
	case cfg.Oracle.Provider == "gemini" && os.Getenv("GEMINI_API_KEY") != "":
		cfg.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
	case cfg.Oracle.Provider == "openai" && os.Getenv("OPENAI_API_KEY") != "":
		cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Oracle.Region = v
		cfg.Archive.Region = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("MAIL_SPOOL_DIR"); v != "" {
		cfg.MailSource.SpoolDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
