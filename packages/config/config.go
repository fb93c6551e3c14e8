package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "config/development.yaml"

// maxCommitPage is the largest page GitHub serves from the commits API.
const maxCommitPage = 100

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GitHub     GitHubConfig     `yaml:"github"`
	AI         AIConfig         `yaml:"ai"`
	Rollback   RollbackConfig   `yaml:"rollback"`
	SEO        SEOConfig        `yaml:"seo"`
	State      StateConfig      `yaml:"state"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Labels     []LabelConfig    `yaml:"labels"`
	Automation AutomationConfig `yaml:"automation"`
	Debug      DebugConfig      `yaml:"debug"`
}

// ServerConfig contains HTTP API configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"DEVFLOW_ADDR,overwrite"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// GitHubConfig contains GitHub API configuration. Tokens only come from the environment.
type GitHubConfig struct {
	Token          string        `yaml:"-" env:"GITHUB_TOKEN,overwrite"`
	FallbackToken  string        `yaml:"-" env:"GH_TOKEN,overwrite"`
	BaseURL        string        `yaml:"base_url" env:"GITHUB_API_URL,overwrite"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
	DefaultBranch  string        `yaml:"default_branch"`
}

// AIConfig contains LLM provider configuration
type AIConfig struct {
	Provider        string        `yaml:"provider" env:"AI_PROVIDER,overwrite"`
	GeminiAPIKey    string        `yaml:"-" env:"GEMINI_API_KEY,overwrite"`
	GroqAPIKey      string        `yaml:"-" env:"GROQ_API_KEY,overwrite"`
	AnthropicAPIKey string        `yaml:"-" env:"ANTHROPIC_API_KEY,overwrite"`
	GeminiModel     string        `yaml:"gemini_model"`
	GroqModel       string        `yaml:"groq_model"`
	GroqBaseURL     string        `yaml:"groq_base_url"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	Temperature     float32       `yaml:"temperature"`
	TopK            int32         `yaml:"top_k"`
	TopP            float32       `yaml:"top_p"`
	MaxOutputTokens int32         `yaml:"max_output_tokens"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// RollbackConfig contains rollback workflow configuration
type RollbackConfig struct {
	DefaultLimit  int           `yaml:"default_limit"`
	MaxLimit      int           `yaml:"max_limit"`
	BranchPrefix  string        `yaml:"branch_prefix"`
	Label         string        `yaml:"label"`
	AssessmentTTL time.Duration `yaml:"assessment_ttl"`
	BlockHighRisk bool          `yaml:"block_high_risk"`
	Scoring       ScoringConfig `yaml:"scoring"`
}

// ScoringConfig holds the thresholds used by the rule based risk scorer
type ScoringConfig struct {
	MediumFiles     int      `yaml:"medium_files"`
	HighFiles       int      `yaml:"high_files"`
	MediumLines     int      `yaml:"medium_lines"`
	HighLines       int      `yaml:"high_lines"`
	MediumCommits   int      `yaml:"medium_commits"`
	HighCommits     int      `yaml:"high_commits"`
	MigrationGlobs  []string `yaml:"migration_globs"`
	DependencyFiles []string `yaml:"dependency_files"`
	ConfigGlobs     []string `yaml:"config_globs"`
	CIGlobs         []string `yaml:"ci_globs"`
}

// SEOConfig contains SEO generation configuration
type SEOConfig struct {
	MetadataPath  string `yaml:"metadata_path"`
	BranchPrefix  string `yaml:"branch_prefix"`
	CommitMessage string `yaml:"commit_message"`
	Label         string `yaml:"label"`
	ReadmeLimit   int    `yaml:"readme_limit"`
}

// StateConfig selects the repository state backend
type StateConfig struct {
	Backend       string `yaml:"backend" env:"STATE_BACKEND,overwrite"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR,overwrite"`
	RedisUsername string `yaml:"redis_username" env:"REDIS_USERNAME,overwrite"`
	RedisPassword string `yaml:"-" env:"REDIS_PASSWORD,overwrite"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	SQLitePath    string `yaml:"sqlite_path" env:"STATE_SQLITE_PATH,overwrite"`
}

// AnalysisConfig contains repository analysis configuration
type AnalysisConfig struct {
	CloneDepth      int      `yaml:"clone_depth"`
	MaxFileBytes    int64    `yaml:"max_file_bytes"`
	MaxFiles        int      `yaml:"max_files"`
	LargeFileBytes  int64    `yaml:"large_file_bytes"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// LabelConfig represents a GitHub label configuration
type LabelConfig struct {
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// AutomationConfig controls what the webhook app does on its own
type AutomationConfig struct {
	SEOOnPush     bool   `yaml:"seo_on_push"`
	TrackedBranch string `yaml:"tracked_branch"`
}

// DebugConfig contains debug-related configuration
type DebugConfig struct {
	Enabled bool `yaml:"enabled" env:"DEVFLOW_DEBUG,overwrite"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    5 << 20,
		},
		GitHub: GitHubConfig{
			BaseURL:        "https://api.github.com/",
			RequestTimeout: 10 * time.Second,
			ExecuteTimeout: 60 * time.Second,
			DefaultBranch:  "main",
		},
		AI: AIConfig{
			Provider:        "auto",
			GeminiModel:     "gemini-2.5-flash",
			GroqModel:       "llama-3.3-70b-versatile",
			GroqBaseURL:     "https://api.groq.com/openai/v1/",
			AnthropicModel:  "claude-sonnet-4-5",
			Temperature:     0.3,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 4096,
			RequestTimeout:  60 * time.Second,
		},
		Rollback: RollbackConfig{
			DefaultLimit:  10,
			MaxLimit:      50,
			BranchPrefix:  "rollback/",
			Label:         "devflow-rollback",
			AssessmentTTL: 30 * time.Minute,
			Scoring: ScoringConfig{
				MediumFiles:   10,
				HighFiles:     50,
				MediumLines:   200,
				HighLines:     1000,
				MediumCommits: 5,
				HighCommits:   20,
				MigrationGlobs: []string{
					"**/migrations/**", "**/migrate/**", "**/*.sql", "**/schema.rb", "**/alembic/**",
				},
				DependencyFiles: []string{
					"go.mod", "go.sum", "package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
					"requirements.txt", "Pipfile", "Pipfile.lock", "poetry.lock", "pyproject.toml",
					"Gemfile", "Gemfile.lock", "Cargo.toml", "Cargo.lock", "pom.xml", "build.gradle",
				},
				ConfigGlobs: []string{
					"**/.env*", "**/*.tf", "**/Dockerfile", "**/docker-compose*.yml", "**/docker-compose*.yaml",
					"**/k8s/**", "**/helm/**", "**/config/**",
				},
				CIGlobs: []string{
					".github/workflows/**", ".gitlab-ci.yml", ".circleci/**", "Jenkinsfile", "azure-pipelines.yml",
				},
			},
		},
		SEO: SEOConfig{
			MetadataPath:  ".devflow/seo-metadata.json",
			BranchPrefix:  "devflow/seo-",
			CommitMessage: "chore(seo): update repository SEO metadata",
			Label:         "devflow-seo",
			ReadmeLimit:   6000,
		},
		State: StateConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "devflow:state:",
			SQLitePath:  "devflow-state.db",
		},
		Analysis: AnalysisConfig{
			CloneDepth:     1,
			MaxFileBytes:   1 << 20,
			MaxFiles:       5000,
			LargeFileBytes: 500 << 10,
		},
		Labels: []LabelConfig{
			{Name: "devflow-rollback", Color: "d73a4a", Description: "Rollback opened by devflow"},
			{Name: "devflow-seo", Color: "a2eeef", Description: "SEO metadata generated by devflow"},
		},
		Automation: AutomationConfig{
			TrackedBranch: "main",
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file at
// configPath and the environment. An empty configPath falls back to the
// default file, which may be absent.
func LoadConfig(ctx context.Context, configPath string) (*Config, error) {
	return load(ctx, configPath, envconfig.OsLookuper())
}

func load(ctx context.Context, configPath string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = cfg.GitHub.FallbackToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	switch c.AI.Provider {
	case "auto", "gemini", "groq", "anthropic", "none":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.Rollback.DefaultLimit <= 0 {
		return fmt.Errorf("rollback.default_limit must be positive")
	}
	if c.Rollback.MaxLimit < c.Rollback.DefaultLimit {
		return fmt.Errorf("rollback.max_limit must be at least rollback.default_limit")
	}
	if c.Rollback.MaxLimit > maxCommitPage {
		return fmt.Errorf("rollback.max_limit must be at most %d", maxCommitPage)
	}
	if c.GitHub.RequestTimeout <= 0 || c.GitHub.ExecuteTimeout <= 0 {
		return fmt.Errorf("github timeouts must be positive")
	}
	return nil
}
