package app

import (
	"context"
	"testing"
	"time"
)

type fakeEnv map[string]string

func (f fakeEnv) Lookup(key string) string { return f[key] }

func TestNew_DefaultsToInMemoryStoreAndWiresCollaborators(t *testing.T) {
	application, err := New(Stores{}, WithEnvironment(fakeEnv{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if application.Store == nil {
		t.Fatal("expected a default in-memory store")
	}
	if application.Orchestrator == nil || application.Scheduler == nil || application.HTTPAPI == nil {
		t.Fatal("expected every long-running collaborator to be wired")
	}
}

func TestNew_HonorsExplicitRuntimeConfig(t *testing.T) {
	cfg := RuntimeConfig{
		TimeZone:          "UTC",
		AdminAddr:         ":9090",
		SchedulerInterval: 5 * time.Minute,
	}
	application, err := New(Stores{}, WithRuntimeConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if application.Scheduler == nil {
		t.Fatal("expected a scheduler")
	}
}

func TestNormalizeRuntimeConfig_DefaultsTimeZoneToShanghai(t *testing.T) {
	settings := normalizeRuntimeConfig(RuntimeConfig{})
	if settings.timeZone == nil || settings.timeZone.String() != "Asia/Shanghai" {
		t.Errorf("expected default time zone Asia/Shanghai, got %v", settings.timeZone)
	}
	if settings.outputDir != "output" {
		t.Errorf("expected default output dir 'output', got %q", settings.outputDir)
	}
	if settings.adminAddr != ":8080" {
		t.Errorf("expected default admin addr ':8080', got %q", settings.adminAddr)
	}
}

func TestNormalizeRuntimeConfig_RejectsBadTimeZone(t *testing.T) {
	settings := normalizeRuntimeConfig(RuntimeConfig{TimeZone: "not-a-real-zone"})
	if settings.timeZone == nil || settings.timeZone.String() != "Asia/Shanghai" {
		t.Errorf("expected fallback to Asia/Shanghai for an invalid zone, got %v", settings.timeZone)
	}
}

func TestRuntimeConfigFromEnv_ReadsEveryVariable(t *testing.T) {
	env := fakeEnv{
		"INKWELL_FRESHNESS_WINDOW":       "72h",
		"INKWELL_FETCH_CONCURRENCY":      "8",
		"INKWELL_DRY_RUN":                "true",
		"INKWELL_ADMIN_TOKENS":           "alpha, beta ,gamma",
		"INKWELL_MANUAL_PUSH_DAILY_LIMIT": "5",
	}
	cfg := runtimeConfigFromEnv(env)
	if cfg.FreshnessWindow != 72*time.Hour {
		t.Errorf("FreshnessWindow = %v", cfg.FreshnessWindow)
	}
	if cfg.GlobalConcurrency != 8 {
		t.Errorf("GlobalConcurrency = %d", cfg.GlobalConcurrency)
	}
	if !cfg.DryRun {
		t.Error("expected DryRun to be true")
	}
	if len(cfg.AdminTokens) != 3 || cfg.AdminTokens[0] != "alpha" || cfg.AdminTokens[2] != "gamma" {
		t.Errorf("AdminTokens = %v", cfg.AdminTokens)
	}
	if cfg.ManualPushDailyLimit != 5 {
		t.Errorf("ManualPushDailyLimit = %d", cfg.ManualPushDailyLimit)
	}
}

func TestApplication_StartStop(t *testing.T) {
	application, err := New(Stores{}, WithEnvironment(fakeEnv{"INKWELL_ADMIN_ADDR": ":0"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplication_Descriptors(t *testing.T) {
	application, err := New(Stores{}, WithEnvironment(fakeEnv{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(application.Descriptors()) == 0 {
		t.Error("expected at least one descriptor from registered services")
	}
}
