// Package app wires every pipeline subsystem together into one runnable
// process: catalogue storage, collection, evaluation, ranking/writing,
// delivery, the manual-push gate, the admin HTTP API, and the scheduler
// that sweeps enabled pipelines on a tick. It plays the same role the
// teacher's internal/app.Application plays for its service fleet, adapted
// to one content pipeline instead of many blockchain services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/catalogue/memory"
	"github.com/originpress/inkwell/internal/catalogue/sqlite"
	"github.com/originpress/inkwell/internal/core"
	"github.com/originpress/inkwell/internal/deliveryclient"
	"github.com/originpress/inkwell/internal/fetch"
	"github.com/originpress/inkwell/internal/httpapi"
	"github.com/originpress/inkwell/internal/llm"
	"github.com/originpress/inkwell/internal/metrics"
	"github.com/originpress/inkwell/internal/pipeline/collector"
	"github.com/originpress/inkwell/internal/pipeline/delivery"
	"github.com/originpress/inkwell/internal/pipeline/evaluator"
	"github.com/originpress/inkwell/internal/pipeline/manualpush"
	"github.com/originpress/inkwell/internal/pipeline/orchestrator"
	"github.com/originpress/inkwell/internal/scraper"
	"github.com/originpress/inkwell/internal/system"
	"github.com/originpress/inkwell/pkg/logger"
	"github.com/originpress/inkwell/pkg/resilience"
)

// Stores bundles the one persistence dependency a Inkwell process needs. A
// nil Catalogue defaults to an in-memory store, matching the teacher's
// Stores.applyDefaults pattern for tests and quick local runs.
type Stores struct {
	Catalogue catalogue.Store
}

func (s *Stores) applyDefaults() {
	if s.Catalogue == nil {
		s.Catalogue = memory.New()
	}
}

// RuntimeConfig captures every tunable spec.md §6 names as an environment
// variable. Zero values are replaced by normalizeRuntimeConfig's defaults,
// so callers only need to set what they want to override.
type RuntimeConfig struct {
	// Catalogue
	CataloguePath string // INKWELL_CATALOGUE_PATH; empty uses the in-memory store

	// Fetcher (§4.C Rate-Limited Fetcher)
	FreshnessWindow   time.Duration // INKWELL_FRESHNESS_WINDOW (F)
	GlobalConcurrency int           // INKWELL_FETCH_CONCURRENCY (G)
	HostInterval      time.Duration // INKWELL_HOST_INTERVAL (I)
	FetchTimeout      time.Duration // INKWELL_FETCH_TIMEOUT
	RetryCount        int           // INKWELL_RETRY_COUNT (R)
	RetryBase         time.Duration // INKWELL_RETRY_BASE (B)

	// LLM evaluator (§4.E)
	LLMEndpoint string        // INKWELL_LLM_ENDPOINT
	LLMModel    string        // INKWELL_LLM_MODEL
	LLMAPIKey   string        // INKWELL_LLM_API_KEY
	LLMInterval time.Duration // INKWELL_LLM_INTERVAL
	LLMTimeout  time.Duration // INKWELL_LLM_TIMEOUT

	// Delivery (§4.G)
	FrontendBaseURL string // INKWELL_FRONTEND_BASE_URL
	TimeZone        string // INKWELL_TIMEZONE, default Asia/Shanghai
	OutputDir       string // INKWELL_OUTPUT_DIR, default "output"
	DryRun          bool   // INKWELL_DRY_RUN

	SMTPHost     string // INKWELL_SMTP_HOST
	SMTPPort     int    // INKWELL_SMTP_PORT
	SMTPUsername string // INKWELL_SMTP_USERNAME
	SMTPPassword string // INKWELL_SMTP_PASSWORD
	SMTPFrom     string // INKWELL_SMTP_FROM

	ChatWebhookURL string // INKWELL_CHAT_WEBHOOK_URL
	ChatAppID      string // INKWELL_CHAT_APP_ID
	ChatAppSecret  string // INKWELL_CHAT_APP_SECRET

	// Manual push (§4.I)
	ManualPushCooldown   time.Duration // INKWELL_MANUAL_PUSH_COOLDOWN
	ManualPushDailyLimit int           // INKWELL_MANUAL_PUSH_DAILY_LIMIT

	// Scheduler + admin API
	SchedulerInterval time.Duration // INKWELL_SCHEDULER_INTERVAL
	AdminAddr         string        // INKWELL_ADMIN_ADDR, default ":8080"
	AdminTokens       []string      // INKWELL_ADMIN_TOKENS, comma-separated
}

// Environment exposes a simple lookup mechanism so callers can inject a
// custom environment source (tests, or a process reading from somewhere
// other than os.Environ).
type Environment interface {
	Lookup(key string) string
}

type osEnvironment struct{}

func (osEnvironment) Lookup(key string) string { return os.Getenv(key) }

// Option customizes the Application at construction time.
type Option func(*builderConfig)

type builderConfig struct {
	httpClient     *http.Client
	environment    Environment
	runtime        RuntimeConfig
	runtimeDefined bool
	log            *logger.Logger
}

// WithRuntimeConfig overrides the runtime configuration used when wiring
// services. When omitted, environment variables are consulted.
func WithRuntimeConfig(cfg RuntimeConfig) Option {
	return func(b *builderConfig) {
		b.runtime = cfg
		b.runtimeDefined = true
	}
}

// WithHTTPClient injects a shared HTTP client used by the fetcher, LLM
// client and chat webhook client. A nil client falls back to each
// collaborator's own default.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builderConfig) { b.httpClient = client }
}

// WithEnvironment provides a custom environment lookup used when no
// explicit runtime configuration was supplied. Passing nil retains the
// default (os.Getenv).
func WithEnvironment(env Environment) Option {
	return func(b *builderConfig) {
		if env != nil {
			b.environment = env
		}
	}
}

// WithLogger overrides the logger every wired component shares.
func WithLogger(log *logger.Logger) Option {
	return func(b *builderConfig) {
		if log != nil {
			b.log = log
		}
	}
}

// Application ties every pipeline subsystem together and manages their
// lifecycle through a system.Manager.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Store        catalogue.Store
	Collector    *collector.Collector
	Evaluator    *evaluator.Evaluator
	Delivery     *delivery.Driver
	PushGate     *manualpush.Gate
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.Scheduler
	HTTPAPI      *httpapi.Service
	Scrapers     *scraper.Registry

	descriptors []core.Descriptor
}

// New builds a fully wired Application over stores. Long-running pieces
// (the scheduler, the admin API) are registered with an internal
// system.Manager but not started; call Start to bring the process up.
func New(stores Stores, opts ...Option) (*Application, error) {
	b := &builderConfig{environment: osEnvironment{}}
	for _, opt := range opts {
		opt(b)
	}
	log := b.log
	if log == nil {
		log = logger.NewDefault()
	}

	runtimeCfg := b.runtime
	if !b.runtimeDefined {
		runtimeCfg = runtimeConfigFromEnv(b.environment)
	}
	settings := normalizeRuntimeConfig(runtimeCfg)

	stores.applyDefaults()
	store := stores.Catalogue
	if settings.cataloguePath != "" {
		sqliteStore, err := sqlite.Open(settings.cataloguePath)
		if err != nil {
			return nil, fmt.Errorf("app: open catalogue at %q: %w", settings.cataloguePath, err)
		}
		store = sqliteStore
	}

	manager := system.NewManager()

	fetcher := fetch.New(fetch.Config{
		GlobalConcurrency: settings.globalConcurrency,
		HostInterval:      settings.hostInterval,
		ConnectTimeout:    settings.fetchTimeout,
		ReadTimeout:       settings.fetchTimeout,
		MaxRetries:        settings.retryCount,
		BackoffBase:       settings.retryBase,
	}, b.httpClient, log)

	registry := scraper.NewRegistry()

	coll := collector.New(store, registry, fetcher, log, collector.WithFreshnessWindow(settings.freshnessWindow))

	var llmClient llm.Client
	if settings.llmEndpoint != "" {
		llmClient = llm.NewHTTPClient(settings.llmEndpoint, settings.llmModel, settings.llmAPIKey, b.httpClient)
	} else {
		log.Warn("LLM endpoint not configured; using a mock LLM client that returns an empty envelope; evaluations fail validation and no article is scored")
		llmClient = llm.NewMockClient(llm.ScoreEnvelope{})
	}
	retryCfg := resilience.DefaultConfig()
	if settings.retryCount > 0 {
		retryCfg.MaxAttempts = settings.retryCount
	}
	if settings.retryBase > 0 {
		retryCfg.InitialDelay = settings.retryBase
	}

	evalOpts := []evaluator.Option{evaluator.WithMinInterval(settings.llmInterval), evaluator.WithRetryConfig(retryCfg)}
	if settings.llmTimeout > 0 {
		evalOpts = append(evalOpts, evaluator.WithCompletionTimeout(settings.llmTimeout))
	}
	eval := evaluator.New(store, llmClient, log, evalOpts...)

	var emailSender deliveryclient.EmailSender
	if settings.smtpHost != "" {
		emailSender = deliveryclient.NewSMTPEmailSender(deliveryclient.SMTPConfig{
			Host:     settings.smtpHost,
			Port:     settings.smtpPort,
			Username: settings.smtpUsername,
			Password: settings.smtpPassword,
			From:     settings.smtpFrom,
		})
	} else {
		log.Warn("SMTP host not configured; email delivery will fail for any pipeline that uses it")
	}

	var chatClient deliveryclient.ChatClient
	if settings.chatWebhookURL != "" {
		chatClient = deliveryclient.NewWebhookChatClient(settings.chatWebhookURL, settings.chatAppID, settings.chatAppSecret, b.httpClient)
	} else {
		log.Warn("chat webhook not configured; chat delivery will fail for any pipeline that uses it")
	}

	deliveryDriver := delivery.New(emailSender, chatClient, log, delivery.Config{
		FrontendBaseURL: settings.frontendBaseURL,
		TimeZone:        settings.timeZone,
	}, delivery.WithRetryConfig(retryCfg))

	orch := orchestrator.New(store, coll, eval, deliveryDriver, settings.outputDir, log, settings.timeZone)
	sched := orchestrator.NewScheduler(orch, settings.schedulerInterval, log)

	pushGate := manualpush.New(store,
		manualpush.WithCooldown(settings.manualPushCooldown),
		manualpush.WithDailyLimit(settings.manualPushDailyLimit),
	)

	apiService := httpapi.NewService(store, orch, pushGate, settings.adminAddr, settings.adminTokens, settings.timeZone, log,
		httpapi.WithInstrumentation(metrics.InstrumentHandler),
	)

	if err := manager.Register(sched); err != nil {
		return nil, fmt.Errorf("app: register scheduler: %w", err)
	}
	if err := manager.Register(apiService); err != nil {
		return nil, fmt.Errorf("app: register admin api: %w", err)
	}

	return &Application{
		manager:      manager,
		log:          log,
		Store:        store,
		Collector:    coll,
		Evaluator:    eval,
		Delivery:     deliveryDriver,
		PushGate:     pushGate,
		Orchestrator: orch,
		Scheduler:    sched,
		HTTPAPI:      apiService,
		Scrapers:     registry,
		descriptors:  manager.Descriptors(),
	}, nil
}

// Start brings up every registered long-running component.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop tears down every registered long-running component in reverse
// registration order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Descriptors reports the introspection metadata advertised by every
// registered long-running component.
func (a *Application) Descriptors() []core.Descriptor {
	return a.descriptors
}

type runtimeSettings struct {
	cataloguePath string

	freshnessWindow   time.Duration
	globalConcurrency int
	hostInterval      time.Duration
	fetchTimeout      time.Duration
	retryCount        int
	retryBase         time.Duration

	llmEndpoint string
	llmModel    string
	llmAPIKey   string
	llmInterval time.Duration
	llmTimeout  time.Duration

	frontendBaseURL string
	timeZone        *time.Location
	outputDir       string
	dryRun          bool

	smtpHost     string
	smtpPort     int
	smtpUsername string
	smtpPassword string
	smtpFrom     string

	chatWebhookURL string
	chatAppID      string
	chatAppSecret  string

	manualPushCooldown   time.Duration
	manualPushDailyLimit int

	schedulerInterval time.Duration
	adminAddr         string
	adminTokens       []string
}

// runtimeConfigFromEnv reads every INKWELL_* variable spec.md §6 names,
// mirroring the teacher's GetEnv/GetEnvBool/GetEnvInt helper style.
func runtimeConfigFromEnv(env Environment) RuntimeConfig {
	return RuntimeConfig{
		CataloguePath: getEnv(env, "INKWELL_CATALOGUE_PATH", ""),

		FreshnessWindow:   getEnvDuration(env, "INKWELL_FRESHNESS_WINDOW", 0),
		GlobalConcurrency: getEnvInt(env, "INKWELL_FETCH_CONCURRENCY", 0),
		HostInterval:      getEnvDuration(env, "INKWELL_HOST_INTERVAL", 0),
		FetchTimeout:      getEnvDuration(env, "INKWELL_FETCH_TIMEOUT", 0),
		RetryCount:        getEnvInt(env, "INKWELL_RETRY_COUNT", 0),
		RetryBase:         getEnvDuration(env, "INKWELL_RETRY_BASE", 0),

		LLMEndpoint: getEnv(env, "INKWELL_LLM_ENDPOINT", ""),
		LLMModel:    getEnv(env, "INKWELL_LLM_MODEL", ""),
		LLMAPIKey:   getEnv(env, "INKWELL_LLM_API_KEY", ""),
		LLMInterval: getEnvDuration(env, "INKWELL_LLM_INTERVAL", 0),
		LLMTimeout:  getEnvDuration(env, "INKWELL_LLM_TIMEOUT", 0),

		FrontendBaseURL: getEnv(env, "INKWELL_FRONTEND_BASE_URL", ""),
		TimeZone:        getEnv(env, "INKWELL_TIMEZONE", ""),
		OutputDir:       getEnv(env, "INKWELL_OUTPUT_DIR", ""),
		DryRun:          getEnvBool(env, "INKWELL_DRY_RUN", false),

		SMTPHost:     getEnv(env, "INKWELL_SMTP_HOST", ""),
		SMTPPort:     getEnvInt(env, "INKWELL_SMTP_PORT", 0),
		SMTPUsername: getEnv(env, "INKWELL_SMTP_USERNAME", ""),
		SMTPPassword: getEnv(env, "INKWELL_SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv(env, "INKWELL_SMTP_FROM", ""),

		ChatWebhookURL: getEnv(env, "INKWELL_CHAT_WEBHOOK_URL", ""),
		ChatAppID:      getEnv(env, "INKWELL_CHAT_APP_ID", ""),
		ChatAppSecret:  getEnv(env, "INKWELL_CHAT_APP_SECRET", ""),

		ManualPushCooldown:   getEnvDuration(env, "INKWELL_MANUAL_PUSH_COOLDOWN", 0),
		ManualPushDailyLimit: getEnvInt(env, "INKWELL_MANUAL_PUSH_DAILY_LIMIT", 0),

		SchedulerInterval: getEnvDuration(env, "INKWELL_SCHEDULER_INTERVAL", 0),
		AdminAddr:         getEnv(env, "INKWELL_ADMIN_ADDR", ""),
		AdminTokens:       splitCSV(getEnv(env, "INKWELL_ADMIN_TOKENS", "")),
	}
}

// normalizeRuntimeConfig fills every zero value in cfg with the documented
// default, producing the resolved settings every collaborator is built
// from.
func normalizeRuntimeConfig(cfg RuntimeConfig) runtimeSettings {
	tz, err := time.LoadLocation(strings.TrimSpace(cfg.TimeZone))
	if err != nil || strings.TrimSpace(cfg.TimeZone) == "" {
		tz, err = time.LoadLocation("Asia/Shanghai")
		if err != nil {
			tz = time.UTC
		}
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}

	adminAddr := cfg.AdminAddr
	if adminAddr == "" {
		adminAddr = ":8080"
	}

	cooldown := cfg.ManualPushCooldown
	if cooldown <= 0 {
		cooldown = manualpush.DefaultCooldown
	}
	dailyLimit := cfg.ManualPushDailyLimit
	if dailyLimit <= 0 {
		dailyLimit = manualpush.DefaultDailyLimit
	}

	schedulerInterval := cfg.SchedulerInterval
	if schedulerInterval <= 0 {
		schedulerInterval = time.Hour
	}

	return runtimeSettings{
		cataloguePath: strings.TrimSpace(cfg.CataloguePath),

		freshnessWindow:   cfg.FreshnessWindow,
		globalConcurrency: cfg.GlobalConcurrency,
		hostInterval:      cfg.HostInterval,
		fetchTimeout:      cfg.FetchTimeout,
		retryCount:        cfg.RetryCount,
		retryBase:         cfg.RetryBase,

		llmEndpoint: strings.TrimSpace(cfg.LLMEndpoint),
		llmModel:    cfg.LLMModel,
		llmAPIKey:   cfg.LLMAPIKey,
		llmInterval: cfg.LLMInterval,
		llmTimeout:  cfg.LLMTimeout,

		frontendBaseURL: cfg.FrontendBaseURL,
		timeZone:        tz,
		outputDir:       outputDir,
		dryRun:          cfg.DryRun,

		smtpHost:     strings.TrimSpace(cfg.SMTPHost),
		smtpPort:     cfg.SMTPPort,
		smtpUsername: cfg.SMTPUsername,
		smtpPassword: cfg.SMTPPassword,
		smtpFrom:     cfg.SMTPFrom,

		chatWebhookURL: strings.TrimSpace(cfg.ChatWebhookURL),
		chatAppID:      cfg.ChatAppID,
		chatAppSecret:  cfg.ChatAppSecret,

		manualPushCooldown:   cooldown,
		manualPushDailyLimit: dailyLimit,

		schedulerInterval: schedulerInterval,
		adminAddr:         adminAddr,
		adminTokens:       cfg.AdminTokens,
	}
}

func getEnv(env Environment, key, defaultValue string) string {
	if env == nil {
		return defaultValue
	}
	if v := strings.TrimSpace(env.Lookup(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(env Environment, key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(getEnv(env, key, "")))
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvInt(env Environment, key string, defaultValue int) int {
	v := getEnv(env, key, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(env Environment, key string, defaultValue time.Duration) time.Duration {
	v := getEnv(env, key, "")
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
