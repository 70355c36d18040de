package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/datalith/dq-check-workflow/aianalysis"
	"github.com/datalith/dq-check-workflow/catalog"
	"github.com/datalith/dq-check-workflow/checker"
	"github.com/datalith/dq-check-workflow/checks"
	"github.com/datalith/dq-check-workflow/notifier"
	"github.com/datalith/dq-check-workflow/orchestrator"
	"github.com/datalith/dq-check-workflow/report"
	"github.com/datalith/dq-check-workflow/sampler"
	"github.com/datalith/dq-check-workflow/storage"
)

// Config is the YAML configuration for one checker deployment. It wires
// the external collaborators; per-invocation parameters arrive in the
// request payload instead.
type Config struct {
	Defaults struct {
		Database         string `yaml:"database"`
		Table            string `yaml:"table"`
		SampleSize       int    `yaml:"sample_size"`
		EnableAIAnalysis bool   `yaml:"enable_ai_analysis"`
	} `yaml:"defaults"`

	Catalog struct {
		DSN               string `yaml:"dsn"`
		MaxRetries        int    `yaml:"max_retries"`
		RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	} `yaml:"catalog"`

	QueryEngine struct {
		DSN         string `yaml:"dsn"`
		MaxRetries  int    `yaml:"max_retries"`
		RequireRows bool   `yaml:"require_rows"`
	} `yaml:"query_engine"`

	Checks struct {
		NullWarningRatio float64             `yaml:"null_warning_ratio"`
		MaxSampleValues  int                 `yaml:"max_sample_values"`
		ForeignKeys      []checks.ForeignKey `yaml:"foreign_keys"`
	} `yaml:"checks"`

	AIAnalysis struct {
		APIURL                string `yaml:"api_url"`
		APIKeyEnv             string `yaml:"api_key_env"`
		ModelID               string `yaml:"model_id"`
		MaxPromptRows         int    `yaml:"max_prompt_rows"`
		CallTimeoutSeconds    int    `yaml:"call_timeout_seconds"`
		MaxRetries            int    `yaml:"max_retries"`
		BreakerThreshold      int    `yaml:"breaker_threshold"`
		BreakerCooldownSecond int    `yaml:"breaker_cooldown_seconds"`
	} `yaml:"ai_analysis"`

	Storage struct {
		Type       string `yaml:"type"`
		BucketName string `yaml:"bucket_name"`
		Region     string `yaml:"region"`
		LocalPath  string `yaml:"local_path"`
		Prefix     string `yaml:"prefix"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"storage"`

	Notifications struct {
		SlackToken    string   `yaml:"slack_token"`
		SlackChannels []string `yaml:"slack_channels"`
		SendgridKey   string   `yaml:"sendgrid_key"`
		EmailFrom     string   `yaml:"email_from"`
		EmailTo       []string `yaml:"email_to"`
		WebhookURLs   []string `yaml:"webhook_urls"`
		MinStatus     string   `yaml:"min_status"`

		Redis struct {
			Address   string `yaml:"address"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"notifications"`

	BudgetSeconds int `yaml:"budget_seconds"`
}

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration names the collaborators every
// invocation needs.
func (c *Config) Validate() error {
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}
	if c.QueryEngine.DSN == "" {
		return fmt.Errorf("query_engine.dsn is required")
	}
	switch c.Storage.Type {
	case "FS":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage.local_path is required for FS storage")
		}
	case "S3", "GCS":
		if c.Storage.BucketName == "" {
			return fmt.Errorf("storage.bucket_name is required for %s storage", c.Storage.Type)
		}
	case "":
		return fmt.Errorf("storage.type is required (FS, S3 or GCS)")
	default:
		return fmt.Errorf("unsupported storage.type: %s", c.Storage.Type)
	}
	if c.AIAnalysis.APIURL != "" && c.AIAnalysis.APIKeyEnv == "" {
		return fmt.Errorf("ai_analysis.api_key_env is required when ai_analysis.api_url is set")
	}
	return nil
}

// Response is the invocation contract: a status code plus a structured
// body, never a raw error.
type Response struct {
	StatusCode int  `json:"statusCode"`
	Body       Body `json:"body"`
}

type Body struct {
	Status           string                   `json:"status"`
	ReportLocation   string                   `json:"report_location,omitempty"`
	ExecutionSummary *report.ExecutionSummary `json:"execution_summary,omitempty"`
	Warnings         []string                 `json:"warnings,omitempty"`
	ErrorType        string                   `json:"error_type,omitempty"`
	Message          string                   `json:"message,omitempty"`
}

// Runner owns the long-lived collaborator handles and serves invocations.
type Runner struct {
	cfg      *Config
	defaults checker.Defaults
	orch     *orchestrator.Orchestrator

	catalogStore *catalog.PostgresCatalog
	queryEngine  *sampler.PostgresEngine
	reportStore  *storage.ReportStore
	scoreCache   *notifier.LatestScoreCache
}

// New builds the collaborator graph from the configuration. Connection
// pools are created once here and reused across invocations.
func New(ctx context.Context, cfg *Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pgCatalog, err := catalog.NewPostgresCatalog(ctx, cfg.Catalog.DSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing catalog client: %w", err)
	}
	retryDelay := time.Duration(cfg.Catalog.RetryDelaySeconds) * time.Second
	catalogClient := catalog.NewRetryingClient(pgCatalog, cfg.Catalog.MaxRetries, retryDelay)

	queryEngine, err := sampler.NewPostgresEngine(ctx, cfg.QueryEngine.DSN)
	if err != nil {
		pgCatalog.Close()
		return nil, fmt.Errorf("error initializing query engine: %w", err)
	}
	samplerOpts := []sampler.Option{}
	if cfg.QueryEngine.MaxRetries > 0 {
		samplerOpts = append(samplerOpts, sampler.WithRetry(cfg.QueryEngine.MaxRetries, time.Second))
	}
	if cfg.QueryEngine.RequireRows {
		samplerOpts = append(samplerOpts, sampler.RequireRows())
	}
	smp := sampler.New(queryEngine, samplerOpts...)

	var refResolver checks.RefResolver
	if len(cfg.Checks.ForeignKeys) > 0 {
		refResolver = func(ctx context.Context, md *checker.TableMetadata, fk checks.ForeignKey, values []interface{}) (int, error) {
			return queryEngine.CountMissingReferences(ctx, md.Database, fk.RefTable, fk.RefColumn, values)
		}
	}
	engine := checks.NewEngine(checks.Config{
		NullWarningRatio: cfg.Checks.NullWarningRatio,
		MaxSampleValues:  cfg.Checks.MaxSampleValues,
		ForeignKeys:      cfg.Checks.ForeignKeys,
	}, refResolver)

	storageClient, err := storage.NewClient(storage.Config{
		Type:       cfg.Storage.Type,
		BucketName: cfg.Storage.BucketName,
		Region:     cfg.Storage.Region,
		LocalPath:  cfg.Storage.LocalPath,
		MaxRetries: cfg.Storage.MaxRetries,
	})
	if err != nil {
		pgCatalog.Close()
		queryEngine.Close()
		return nil, fmt.Errorf("error initializing storage client: %w", err)
	}
	prefix := cfg.Storage.Prefix
	if prefix == "" {
		prefix = "quality-checks"
	}
	reportStore := storage.NewReportStore(storageClient, prefix)

	opts := []orchestrator.Option{}
	if cfg.BudgetSeconds > 0 {
		opts = append(opts, orchestrator.WithBudget(time.Duration(cfg.BudgetSeconds)*time.Second))
	}

	if cfg.AIAnalysis.APIURL != "" {
		apiKey := os.Getenv(cfg.AIAnalysis.APIKeyEnv)
		invoker, err := aianalysis.NewAnthropicClient(cfg.AIAnalysis.APIURL, apiKey,
			time.Duration(cfg.AIAnalysis.CallTimeoutSeconds)*time.Second)
		if err != nil {
			pgCatalog.Close()
			queryEngine.Close()
			reportStore.Close()
			return nil, fmt.Errorf("error initializing model client: %w", err)
		}
		retry := aianalysis.DefaultRetryConfig()
		if cfg.AIAnalysis.MaxRetries > 0 {
			retry.MaxAttempts = cfg.AIAnalysis.MaxRetries
		}
		agent := aianalysis.NewAgent(invoker, aianalysis.Config{
			ModelID:          cfg.AIAnalysis.ModelID,
			MaxPromptRows:    cfg.AIAnalysis.MaxPromptRows,
			Retry:            retry,
			BreakerThreshold: cfg.AIAnalysis.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.AIAnalysis.BreakerCooldownSecond) * time.Second,
		})
		opts = append(opts, orchestrator.WithAgent(agent))
	}

	var notifiers []orchestrator.Notifier
	n := cfg.Notifications
	if n.SlackToken != "" || n.SendgridKey != "" || len(n.WebhookURLs) > 0 {
		notifiers = append(notifiers, notifier.NewDispatcher(notifier.Config{
			SlackToken:    n.SlackToken,
			SlackChannels: n.SlackChannels,
			SendgridKey:   n.SendgridKey,
			EmailFrom:     n.EmailFrom,
			EmailTo:       n.EmailTo,
			WebhookURLs:   n.WebhookURLs,
			MinStatus:     n.MinStatus,
		}))
	}
	var scoreCache *notifier.LatestScoreCache
	if n.Redis.Address != "" {
		scoreCache, err = notifier.NewLatestScoreCache(notifier.RedisConfig{
			Address:   n.Redis.Address,
			Password:  n.Redis.Password,
			DB:        n.Redis.DB,
			KeyPrefix: n.Redis.KeyPrefix,
		})
		if err != nil {
			log.Printf("Warning: latest-score cache disabled: %v", err)
		} else {
			notifiers = append(notifiers, scoreCache)
		}
	}
	if len(notifiers) > 0 {
		opts = append(opts, orchestrator.WithNotifiers(notifiers...))
	}

	defaults := checker.DefaultsFromEnv()
	if cfg.Defaults.Database != "" {
		defaults.Database = cfg.Defaults.Database
	}
	if cfg.Defaults.Table != "" {
		defaults.Table = cfg.Defaults.Table
	}
	if cfg.Defaults.SampleSize > 0 {
		defaults.SampleSize = cfg.Defaults.SampleSize
	}
	if cfg.Defaults.EnableAIAnalysis {
		defaults.EnableAIAnalysis = true
	}

	return &Runner{
		cfg:          cfg,
		defaults:     defaults,
		orch:         orchestrator.New(catalogClient, smp, engine, reportStore, opts...),
		catalogStore: pgCatalog,
		queryEngine:  queryEngine,
		reportStore:  reportStore,
		scoreCache:   scoreCache,
	}, nil
}

// Invoke resolves and runs one check request. The returned Response always
// follows the invocation contract; errors are folded into it.
func (r *Runner) Invoke(ctx context.Context, payload map[string]interface{}) Response {
	req, err := checker.Resolve(payload, r.defaults)
	if err != nil {
		return errorResponse(err)
	}

	outcome, err := r.orch.Run(ctx, req)
	if err != nil {
		return errorResponse(err)
	}

	return Response{
		StatusCode: 200,
		Body: Body{
			Status:           string(outcome.Report.Status),
			ReportLocation:   outcome.Location,
			ExecutionSummary: &outcome.Report.ExecutionSummary,
			Warnings:         outcome.Warnings,
		},
	}
}

// Close releases the collaborator handles.
func (r *Runner) Close() {
	r.catalogStore.Close()
	r.queryEngine.Close()
	if err := r.reportStore.Close(); err != nil {
		log.Printf("Warning: error closing report store: %v", err)
	}
	if r.scoreCache != nil {
		if err := r.scoreCache.Close(); err != nil {
			log.Printf("Warning: error closing score cache: %v", err)
		}
	}
}

func errorResponse(err error) Response {
	return Response{
		StatusCode: checker.StatusCode(err),
		Body: Body{
			Status:    "ERROR",
			ErrorType: checker.ErrorType(err),
			Message:   err.Error(),
		},
	}
}
